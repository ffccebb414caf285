package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve USER_ID",
	Short: "Resolve a user's effective permissions in the session tenant",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

var checkCmd = &cobra.Command{
	Use:   "check PERMISSION",
	Short: "Check whether the session holds a permission",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

var expandCmd = &cobra.Command{
	Use:   "expand PERMISSION...",
	Short: "Preview the dependency closure of permission keys",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExpand,
}

func init() {
	resolveCmd.Flags().String("relationship", "", "Resolve at a relationship scope")
}

func runResolve(cmd *cobra.Command, args []string) error {
	client := mustClient()

	body := map[string]any{"user_id": args[0]}
	if rel, _ := cmd.Flags().GetString("relationship"); rel != "" {
		body["relationship_id"] = rel
	}

	data, err := client.Post("/api/v1/access/resolve", body)
	if err != nil {
		return err
	}

	var resp ResolveResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		fmt.Printf("User:          %s\n", resp.UserID)
		fmt.Printf("Tenant:        %s\n", resp.TenantID)
		fmt.Printf("Relationship:  %s\n", ptrStr(resp.RelationshipID))
		fmt.Printf("\nEffective permissions (%d):\n", len(resp.Permissions))
		for _, p := range resp.Permissions {
			fmt.Printf("  %s\n", p)
		}
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	client := mustClient()

	data, err := client.Post("/api/v1/access/check", map[string]any{"permission": args[0]})
	if err != nil {
		return err
	}

	var resp CheckResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		if resp.Allowed {
			fmt.Printf("%s: allowed\n", resp.Permission)
		} else {
			fmt.Printf("%s: denied\n", resp.Permission)
		}
	}
	return nil
}

func runExpand(cmd *cobra.Command, args []string) error {
	client := mustClient()

	data, err := client.Post("/api/v1/permissions/expand", map[string]any{"permissions": args})
	if err != nil {
		return err
	}

	var resp ExpandResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		fmt.Printf("Input (%d):\n", len(resp.Permissions))
		for _, p := range resp.Permissions {
			fmt.Printf("  %s\n", p)
		}
		fmt.Printf("\nExpanded (%d):\n", len(resp.Expanded))
		for _, p := range resp.Expanded {
			fmt.Printf("  %s\n", p)
		}
	}
	return nil
}
