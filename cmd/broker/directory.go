package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/broker/pkg/cli"
	"mercator-hq/broker/pkg/directory"
)

var directoryFlags struct {
	file   string
	output string
}

var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Inspect the API key and service directory",
}

var directoryValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a directory document",
	Long: `Parse and validate a directory document and summarize its services.

Token values are never printed.

Examples:
  # Validate the directory named in the configuration
  broker directory validate

  # Validate a specific file
  broker directory validate --file directory.yaml --output json`,
	RunE: validateDirectory,
}

func init() {
	rootCmd.AddCommand(directoryCmd)
	directoryCmd.AddCommand(directoryValidateCmd)

	directoryValidateCmd.Flags().StringVarP(&directoryFlags.file, "file", "f", "", "directory file (uses config if not specified)")
	directoryValidateCmd.Flags().StringVarP(&directoryFlags.output, "output", "o", "text", "output format: text, json, csv")
}

// directorySummary lists the services of a validated document.
type directorySummary struct {
	File     string           `json:"file"`
	APIKeys  int              `json:"apiKeys"`
	Usable   int              `json:"usableApiKeys"`
	Services []serviceSummary `json:"services"`
}

type serviceSummary struct {
	Name       string `json:"name"`
	Active     bool   `json:"active"`
	Throttled  bool   `json:"throttled"`
	Endpoints  int    `json:"endpoints"`
	Deprecated int    `json:"deprecatedEndpoints"`
}

func (s *directorySummary) Header() []string {
	return []string{"SERVICE", "ACTIVE", "THROTTLED", "ENDPOINTS", "DEPRECATED"}
}

func (s *directorySummary) Rows() [][]string {
	rows := make([][]string, 0, len(s.Services))
	for _, svc := range s.Services {
		rows = append(rows, []string{
			svc.Name,
			strconv.FormatBool(svc.Active),
			strconv.FormatBool(svc.Throttled),
			strconv.Itoa(svc.Endpoints),
			strconv.Itoa(svc.Deprecated),
		})
	}
	return rows
}

func summarizeDirectory(file string, doc *directory.Document, now time.Time) *directorySummary {
	sum := &directorySummary{File: file, APIKeys: len(doc.APIKeys)}
	for i := range doc.APIKeys {
		if doc.APIKeys[i].Usable(now) {
			sum.Usable++
		}
	}
	for _, svc := range doc.Services {
		s := serviceSummary{
			Name:      svc.Name,
			Active:    svc.Active,
			Throttled: svc.ThrottleEnabled,
			Endpoints: len(svc.Endpoints),
		}
		for _, ep := range svc.Endpoints {
			if ep.Deprecated {
				s.Deprecated++
			}
		}
		sum.Services = append(sum.Services, s)
	}
	sort.Slice(sum.Services, func(i, j int) bool { return sum.Services[i].Name < sum.Services[j].Name })
	return sum
}

func validateDirectory(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(directoryFlags.output)
	if err != nil {
		return err
	}

	file := directoryFlags.file
	if file == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		file = cfg.Directory.FilePath
	}

	doc, err := directory.LoadFile(file)
	if err != nil {
		return cli.NewCommandError("directory validate", err)
	}

	sum := summarizeDirectory(file, doc, time.Now())
	out := cmd.OutOrStdout()
	if format == cli.FormatText {
		fmt.Fprintf(out, "✓ %s is valid: %d API keys (%d usable), %d services\n\n",
			file, sum.APIKeys, sum.Usable, len(sum.Services))
	}
	return cli.NewFormatter(format).FormatTo(out, sum)
}
