package cmd

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "List resources",
}

var getTenantsCmd = &cobra.Command{
	Use:     "tenants",
	Aliases: []string{"tenant"},
	Short:   "List tenants",
	RunE:    runGetTenants,
}

var getGrantsCmd = &cobra.Command{
	Use:   "grants TENANT_ID",
	Short: "List a tenant's granted permissions",
	Args:  cobra.ExactArgs(1),
	RunE:  runGetGrants,
}

var getRolesCmd = &cobra.Command{
	Use:     "roles",
	Aliases: []string{"role"},
	Short:   "List roles in the session tenant",
	RunE:    runGetRoles,
}

var getBundlesCmd = &cobra.Command{
	Use:     "bundles",
	Aliases: []string{"bundle"},
	Short:   "List bundles usable by the session tenant",
	RunE:    runGetBundles,
}

var getAssignmentsCmd = &cobra.Command{
	Use:     "assignments",
	Aliases: []string{"assignment"},
	Short:   "List role assignments in the session tenant",
	RunE:    runGetAssignments,
}

var getPermissionsCmd = &cobra.Command{
	Use:     "permissions",
	Aliases: []string{"catalog"},
	Short:   "List the permission catalog",
	RunE:    runGetPermissions,
}

var getAuditLogsCmd = &cobra.Command{
	Use:     "audit-logs",
	Aliases: []string{"audit-log", "logs"},
	Short:   "List audit log entries",
	RunE:    runGetAuditLogs,
}

func init() {
	getRolesCmd.Flags().Bool("all", false, "Include inactive roles")

	getAssignmentsCmd.Flags().String("user", "", "Filter by user ID")
	getAssignmentsCmd.Flags().Bool("all", false, "Include inactive assignments")

	getAuditLogsCmd.Flags().String("tenant", "", "Filter by tenant ID")
	getAuditLogsCmd.Flags().String("actor", "", "Filter by actor ID")
	getAuditLogsCmd.Flags().String("action", "", "Filter by action")
	getAuditLogsCmd.Flags().String("resource-type", "", "Filter by resource type")
	getAuditLogsCmd.Flags().String("from", "", "From date (RFC3339)")
	getAuditLogsCmd.Flags().String("to", "", "To date (RFC3339)")
	getAuditLogsCmd.Flags().Int("limit", 50, "Maximum entries")
	getAuditLogsCmd.Flags().Int("offset", 0, "Offset")

	getCmd.AddCommand(getTenantsCmd)
	getCmd.AddCommand(getGrantsCmd)
	getCmd.AddCommand(getRolesCmd)
	getCmd.AddCommand(getBundlesCmd)
	getCmd.AddCommand(getAssignmentsCmd)
	getCmd.AddCommand(getPermissionsCmd)
	getCmd.AddCommand(getAuditLogsCmd)
}

func runGetTenants(cmd *cobra.Command, args []string) error {
	client := mustClient()

	data, err := client.Get("/api/v1/tenants")
	if err != nil {
		return err
	}

	var resp ListResponse[TenantResponse]
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	case outputWide:
		t := newTable("ID", "NAME", "KIND", "STATUS", "CREATED")
		for _, tn := range resp.Data {
			t.AddRow(tn.ID, tn.Name, tn.Kind, tn.Status, shortTime(tn.CreatedAt))
		}
		t.Flush()
		printTotal(resp.Total)
	default:
		t := newTable("ID", "NAME", "KIND", "STATUS")
		for _, tn := range resp.Data {
			t.AddRow(truncate(tn.ID, 12), tn.Name, tn.Kind, tn.Status)
		}
		t.Flush()
		printTotal(resp.Total)
	}
	return nil
}

func runGetGrants(cmd *cobra.Command, args []string) error {
	client := mustClient()

	data, err := client.Get("/api/v1/tenants/" + args[0] + "/grants")
	if err != nil {
		return err
	}

	var resp ListResponse[GrantResponse]
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		t := newTable("PERMISSION", "GRANTED BY", "GRANTED AT")
		for _, g := range resp.Data {
			t.AddRow(g.Permission, truncate(g.GrantedBy, 12), shortTime(g.GrantedAt))
		}
		t.Flush()
		printTotal(resp.Total)
	}
	return nil
}

func runGetRoles(cmd *cobra.Command, args []string) error {
	client := mustClient()

	path := "/api/v1/roles"
	if all, _ := cmd.Flags().GetBool("all"); all {
		path += "?active_only=false"
	}

	data, err := client.Get(path)
	if err != nil {
		return err
	}

	var resp ListResponse[RoleResponse]
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	case outputWide:
		t := newTable("ID", "NAME", "STATUS", "PERMISSIONS", "CREATED")
		for _, ro := range resp.Data {
			t.AddRow(ro.ID, ro.Name, ro.Status, joinKeys(ro.Permissions), shortTime(ro.CreatedAt))
		}
		t.Flush()
		printTotal(resp.Total)
	default:
		t := newTable("ID", "NAME", "STATUS", "PERMS")
		for _, ro := range resp.Data {
			t.AddRow(truncate(ro.ID, 12), ro.Name, ro.Status, strconv.Itoa(len(ro.Permissions)))
		}
		t.Flush()
		printTotal(resp.Total)
	}
	return nil
}

func runGetBundles(cmd *cobra.Command, args []string) error {
	client := mustClient()

	data, err := client.Get("/api/v1/bundles")
	if err != nil {
		return err
	}

	var resp ListResponse[BundleResponse]
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		t := newTable("ID", "NAME", "SCOPE", "STATUS", "PERMISSIONS")
		for _, b := range resp.Data {
			scope := "global"
			if b.ScopeTenantID != nil {
				scope = truncate(*b.ScopeTenantID, 12)
			}
			t.AddRow(truncate(b.ID, 12), b.Name, scope, b.Status, joinKeys(b.Permissions))
		}
		t.Flush()
		printTotal(resp.Total)
	}
	return nil
}

func runGetAssignments(cmd *cobra.Command, args []string) error {
	client := mustClient()

	params := url.Values{}
	if v, _ := cmd.Flags().GetString("user"); v != "" {
		params.Set("user_id", v)
	}
	if all, _ := cmd.Flags().GetBool("all"); all {
		params.Set("active_only", "false")
	}

	path := "/api/v1/assignments"
	if q := params.Encode(); q != "" {
		path += "?" + q
	}

	data, err := client.Get(path)
	if err != nil {
		return err
	}

	var resp ListResponse[AssignmentResponse]
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		t := newTable("ID", "USER", "ROLE", "RELATIONSHIP", "STATUS")
		for _, a := range resp.Data {
			rel := "-"
			if a.RelationshipID != nil {
				rel = truncate(*a.RelationshipID, 12)
			}
			t.AddRow(truncate(a.ID, 12), truncate(a.UserID, 12), truncate(a.RoleID, 12), rel, a.Status)
		}
		t.Flush()
		printTotal(resp.Total)
	}
	return nil
}

func runGetPermissions(cmd *cobra.Command, args []string) error {
	client := mustClient()

	data, err := client.Get("/api/v1/permissions")
	if err != nil {
		return err
	}

	var resp ListResponse[PermissionInfo]
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		t := newTable("KEY", "CATEGORY", "REQUIRES")
		for _, p := range resp.Data {
			t.AddRow(p.Key, p.Category, joinKeys(p.Requires))
		}
		t.Flush()
		printTotal(resp.Total)
	}
	return nil
}

func runGetAuditLogs(cmd *cobra.Command, args []string) error {
	client := mustClient()

	params := url.Values{}
	if v, _ := cmd.Flags().GetString("tenant"); v != "" {
		params.Set("tenant_id", v)
	}
	if v, _ := cmd.Flags().GetString("actor"); v != "" {
		params.Set("actor_id", v)
	}
	if v, _ := cmd.Flags().GetString("action"); v != "" {
		params.Set("action", v)
	}
	if v, _ := cmd.Flags().GetString("resource-type"); v != "" {
		params.Set("resource_type", v)
	}
	if v, _ := cmd.Flags().GetString("from"); v != "" {
		params.Set("from", v)
	}
	if v, _ := cmd.Flags().GetString("to"); v != "" {
		params.Set("to", v)
	}
	if v, _ := cmd.Flags().GetInt("limit"); v > 0 {
		params.Set("limit", strconv.Itoa(v))
	}
	if v, _ := cmd.Flags().GetInt("offset"); v > 0 {
		params.Set("offset", strconv.Itoa(v))
	}

	path := "/api/v1/audit-logs"
	if q := params.Encode(); q != "" {
		path += "?" + q
	}

	data, err := client.Get(path)
	if err != nil {
		return err
	}

	var resp ListResponse[AuditEntryResponse]
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	case outputWide:
		t := newTable("ID", "ACTOR", "ACTION", "RESOURCE", "RESULT", "MESSAGE", "TIME")
		for _, l := range resp.Data {
			t.AddRow(l.ID, ptrStr(l.ActorID), l.Action, l.ResourceType, l.Result, truncate(l.Message, 40), shortTime(l.Timestamp))
		}
		t.Flush()
		printTotal(resp.Total)
	default:
		t := newTable("ID", "ACTOR", "ACTION", "RESOURCE", "RESULT", "TIME")
		for _, l := range resp.Data {
			actor := "-"
			if l.ActorID != nil {
				actor = truncate(*l.ActorID, 12)
			}
			t.AddRow(truncate(l.ID, 12), actor, l.Action, l.ResourceType, l.Result, shortTime(l.Timestamp))
		}
		t.Flush()
		printTotal(resp.Total)
	}
	return nil
}
