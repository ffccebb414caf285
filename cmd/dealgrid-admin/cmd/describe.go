package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Show detailed information about a resource",
}

var describeTenantCmd = &cobra.Command{
	Use:   "tenant ID",
	Short: "Show tenant details with relationships and grants",
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribeTenant,
}

var describeRoleCmd = &cobra.Command{
	Use:   "role ID",
	Short: "Show role details with its expanded permission set",
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribeRole,
}

var describeAssignmentCmd = &cobra.Command{
	Use:   "assignment ID",
	Short: "Show assignment details",
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribeAssignment,
}

func init() {
	describeCmd.AddCommand(describeTenantCmd)
	describeCmd.AddCommand(describeRoleCmd)
	describeCmd.AddCommand(describeAssignmentCmd)
}

func runDescribeTenant(cmd *cobra.Command, args []string) error {
	client := mustClient()

	data, err := client.Get("/api/v1/tenants/" + args[0])
	if err != nil {
		return err
	}

	var tenant TenantResponse
	if err := unmarshal(data, &tenant); err != nil {
		return err
	}

	if flagOutput == outputJSON {
		printJSON(tenant)
		return nil
	}
	if flagOutput == outputYAML {
		printYAML(tenant)
		return nil
	}

	fmt.Printf("Name:     %s\n", tenant.Name)
	fmt.Printf("ID:       %s\n", tenant.ID)
	fmt.Printf("Kind:     %s\n", tenant.Kind)
	fmt.Printf("Status:   %s\n", tenant.Status)
	fmt.Printf("Created:  %s\n", shortTime(tenant.CreatedAt))

	// Relationships and grants need their own permissions; show them
	// when the session has access, skip quietly otherwise.
	if data, err := client.Get("/api/v1/tenants/" + args[0] + "/relationships"); err == nil {
		var rels ListResponse[RelationshipResponse]
		if err := unmarshal(data, &rels); err == nil && len(rels.Data) > 0 {
			fmt.Printf("\nRelationships:\n")
			t := newTable("  ID", "FROM", "TO", "KIND", "STATUS")
			for _, rel := range rels.Data {
				t.AddRow("  "+truncate(rel.ID, 12), truncate(rel.FromTenantID, 12), truncate(rel.ToTenantID, 12), rel.Kind, rel.Status)
			}
			t.Flush()
		}
	}

	if data, err := client.Get("/api/v1/tenants/" + args[0] + "/grants"); err == nil {
		var grants ListResponse[GrantResponse]
		if err := unmarshal(data, &grants); err == nil && len(grants.Data) > 0 {
			fmt.Printf("\nGranted permissions (%d):\n", grants.Total)
			for _, g := range grants.Data {
				fmt.Printf("  %s\n", g.Permission)
			}
		}
	}

	return nil
}

func runDescribeRole(cmd *cobra.Command, args []string) error {
	client := mustClient()

	data, err := client.Get("/api/v1/roles/" + args[0])
	if err != nil {
		return err
	}

	var role RoleResponse
	if err := unmarshal(data, &role); err != nil {
		return err
	}

	if flagOutput == outputJSON {
		printJSON(role)
		return nil
	}
	if flagOutput == outputYAML {
		printYAML(role)
		return nil
	}

	fmt.Printf("Name:         %s\n", role.Name)
	fmt.Printf("ID:           %s\n", role.ID)
	fmt.Printf("Tenant:       %s\n", role.TenantID)
	fmt.Printf("Status:       %s\n", role.Status)
	if role.Description != "" {
		fmt.Printf("Description:  %s\n", role.Description)
	}
	fmt.Printf("Created:      %s\n", shortTime(role.CreatedAt))
	fmt.Printf("\nPermissions (%d, dependency-expanded):\n", len(role.Permissions))
	for _, p := range role.Permissions {
		fmt.Printf("  %s\n", p)
	}
	return nil
}

func runDescribeAssignment(cmd *cobra.Command, args []string) error {
	client := mustClient()

	data, err := client.Get("/api/v1/assignments/" + args[0])
	if err != nil {
		return err
	}

	var a AssignmentResponse
	if err := unmarshal(data, &a); err != nil {
		return err
	}

	if flagOutput == outputJSON {
		printJSON(a)
		return nil
	}
	if flagOutput == outputYAML {
		printYAML(a)
		return nil
	}

	fmt.Printf("ID:            %s\n", a.ID)
	fmt.Printf("User:          %s\n", a.UserID)
	fmt.Printf("Tenant:        %s\n", a.TenantID)
	fmt.Printf("Role:          %s\n", a.RoleID)
	fmt.Printf("Relationship:  %s\n", ptrStr(a.RelationshipID))
	fmt.Printf("Status:        %s\n", a.Status)
	fmt.Printf("Created:       %s\n", shortTime(a.CreatedAt))
	return nil
}
