package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/carewatch-core/internal/api"
	"github.com/nerrad567/carewatch-core/internal/care"
	"github.com/nerrad567/carewatch-core/internal/entity"
	"github.com/nerrad567/carewatch-core/internal/infrastructure/logging"
	"github.com/nerrad567/carewatch-core/internal/radar"
)

// defaultTokenTTL is the lifetime of tokens issued by `carewatch token`.
const defaultTokenTTL = 24 * time.Hour

// withCore loads the configuration, wires the shared components and runs
// fn. Logs go to stderr so command output stays clean.
func withCore(cmd *cobra.Command, fn func(ctx context.Context, c *core) error) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}

	logCfg := cfg.Logging
	logCfg.Output = "stderr"
	log := logging.New(logCfg, version)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c, err := newCore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(ctx, c)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func newPersonsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "persons",
		Short: "List monitored persons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			force, _ := cmd.Flags().GetBool("force")
			return withCore(cmd, func(ctx context.Context, c *core) error {
				persons, err := c.cache.FetchPersons(ctx, force)
				if err != nil {
					return fmt.Errorf("listing persons: %w", err)
				}

				out := cmd.OutOrStdout()
				if jsonOutput(cmd) {
					return printJSON(out, persons)
				}

				tw := newTable(out)
				fmt.Fprintln(tw, "ID\tNAME\tDEPARTMENT\tGENDER\tAGE\tDEVICES")
				for _, p := range persons {
					names := make([]string, len(p.Devices))
					for i, d := range p.Devices {
						names[i] = d.DeviceName
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
						p.PersonID, p.PersonName, p.Department, p.Gender, p.Age, strings.Join(names, ", "))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().Bool("force", false, "ignore snapshot freshness and fetch from the backend")
	return cmd
}

func newDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List radar devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			force, _ := cmd.Flags().GetBool("force")
			return withCore(cmd, func(ctx context.Context, c *core) error {
				devices, err := c.cache.FetchDevices(ctx, force)
				if err != nil {
					return fmt.Errorf("listing devices: %w", err)
				}

				out := cmd.OutOrStdout()
				if jsonOutput(cmd) {
					return printJSON(out, devices)
				}

				now := time.Now()
				tw := newTable(out)
				fmt.Fprintln(tw, "ID\tNAME\tMODEL\tMONITOR\tSTATUS\tLAST SEEN")
				for _, d := range devices {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						d.DeviceID,
						d.DeviceName,
						radar.ModelText(d),
						radar.MonitorType(d),
						radar.StatusText(string(d.Status)),
						radar.FormatDeviceTime(d.LastDataTime, now, c.loc),
					)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().Bool("force", false, "ignore snapshot freshness and fetch from the backend")
	return cmd
}

func newMappingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "List active person-device mappings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			force, _ := cmd.Flags().GetBool("force")
			return withCore(cmd, func(ctx context.Context, c *core) error {
				mappings, err := c.cache.FetchMappings(ctx, force)
				if err != nil {
					return fmt.Errorf("listing mappings: %w", err)
				}

				out := cmd.OutOrStdout()
				if jsonOutput(cmd) {
					return printJSON(out, mappings)
				}

				tw := newTable(out)
				fmt.Fprintln(tw, "ID\tPERSON\tDEVICE\tNAME\tACTIVE")
				for _, m := range mappings {
					fmt.Fprintf(tw, "%s\t%s (%s)\t%s (%s)\t%s\t%t\n",
						m.ID, m.PersonName, m.PersonID, m.DeviceName, m.DeviceID, m.MappingName, m.Active)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().Bool("force", false, "ignore snapshot freshness and fetch from the backend")
	return cmd
}

func newAlertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List fall alerts for a person",
		Long: `List fall alerts. Without --person the first cached person is used.
Use --status ALL or --category ALL to drop that filter, and
--scope ALL to list alerts for every person.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			personID, _ := cmd.Flags().GetString("person")

			var patch care.AlertFilterPatch
			for flag, field := range map[string]**string{
				"status":   &patch.Status,
				"category": &patch.Category,
				"scope":    &patch.PersonScope,
			} {
				if cmd.Flags().Changed(flag) {
					v, _ := cmd.Flags().GetString(flag)
					*field = &v
				}
			}

			return withCore(cmd, func(ctx context.Context, c *core) error {
				if personID == "" {
					persons, err := c.cache.FetchPersons(ctx, false)
					if err != nil {
						return fmt.Errorf("listing persons: %w", err)
					}
					if len(persons) > 0 {
						personID = persons[0].PersonID
					}
				}
				if personID != "" {
					c.cache.SetSelectedPerson(personID)
				}

				// Setting the filter refetches with it applied.
				c.scope.SetAlertFilter(ctx, patch)
				if p := c.scope.Problems()[care.SectionAlerts]; p != nil {
					return fmt.Errorf("listing alerts: %w", p)
				}

				out := cmd.OutOrStdout()
				if jsonOutput(cmd) {
					return printJSON(out, map[string]any{
						"filter": c.scope.AlertFilter(),
						"stats":  c.scope.AlertStats(),
						"items":  c.scope.Alerts(),
					})
				}

				tw := newTable(out)
				fmt.Fprintln(tw, "ID\tPERSON\tDEVICE\tCATEGORY\tSTATUS\tSEVERITY\tDETECTED")
				for _, a := range c.scope.Alerts() {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						a.ID, a.PersonName, a.DeviceID, a.Category, a.Status, a.Severity, a.DetectedAt)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				stats := c.scope.AlertStats()
				fmt.Fprintf(out, "\n%d total, %d active, %d critical\n", stats.Total, stats.Active, stats.Critical)
				return nil
			})
		},
	}
	cmd.Flags().String("person", "", "person ID")
	cmd.Flags().String("status", care.AlertStatusActive, "alert status filter")
	cmd.Flags().String("category", care.All, "alert category filter")
	cmd.Flags().String("scope", care.PersonScopeCurrent, "person scope: CURRENT or ALL")
	return cmd
}

func newHydrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hydrate",
		Short: "Run one scope hydration and print the result",
		Long: `Refresh the entity collections, alerts, device overview, detections
and vital history for one person, then print the aggregated view as JSON.
Section failures are reported in "problems" and do not fail the command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			personID, _ := cmd.Flags().GetString("person")
			force, _ := cmd.Flags().GetBool("force")

			return withCore(cmd, func(ctx context.Context, c *core) error {
				if personID != "" {
					c.cache.SetSelectedPerson(personID)
				}
				c.scope.HydrateScope(ctx, force)
				return printJSON(cmd.OutOrStdout(), c.scope.View())
			})
		},
	}
	cmd.Flags().String("person", "", "person ID (default: first person)")
	cmd.Flags().Bool("force", true, "bypass entity cache TTLs")
	return cmd
}

func newDeviceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "device-status STATUS DEVICE_ID...",
		Short: "Set the status of one or more devices",
		Long:  "Set devices to ONLINE, OFFLINE or MAINTENANCE.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := entity.DeviceStatus(strings.ToUpper(strings.TrimSpace(args[0])))
			if !status.IsKnown() {
				return fmt.Errorf("invalid status %q: must be ONLINE, OFFLINE or MAINTENANCE", args[0])
			}
			ids := args[1:]

			return withCore(cmd, func(ctx context.Context, c *core) error {
				var err error
				if len(ids) == 1 {
					err = c.client.UpdateDeviceStatus(ctx, ids[0], string(status))
				} else {
					err = c.client.BatchUpdateDeviceStatus(ctx, ids, string(status))
				}
				if err != nil {
					return fmt.Errorf("updating device status: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d device(s) set to %s\n", len(ids), status)
				return nil
			})
		},
	}
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the view server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if strings.TrimSpace(subject) == "" {
				return fmt.Errorf("--subject is required")
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive")
			}

			cfg, err := loadConfig(cmd, false)
			if err != nil {
				return err
			}
			token, err := api.IssueToken(cfg.Security.JWT, subject, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "token subject, e.g. a dashboard user name")
	cmd.Flags().Duration("ttl", defaultTokenTTL, "token lifetime")
	return cmd
}
