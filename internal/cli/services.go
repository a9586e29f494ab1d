package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/carp/internal/apiversion"
	"github.com/roach88/carp/internal/replay"
)

// ServiceInfo describes one registered service.
type ServiceInfo struct {
	Name       string   `json:"name"`
	Current    string   `json:"current"`
	Operations []string `json:"operations"`
	Schemas    []string `json:"schemas"`
}

// NewServicesCommand creates the services command.
func NewServicesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List services, their API versions and operations",
		Long: `List every registered service with the API version it speaks, its
operations and the versions a wire schema exists for.

Examples:
  carp services
  carp services --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := describeServices(rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to describe services", err)
			}
			return rootOpts.formatter(cmd).Result("ok", infos, nil, func(w io.Writer) {
				for _, info := range infos {
					fmt.Fprintf(w, "%s %s (schemas: %v)\n", info.Name, info.Current, info.Schemas)
					for _, op := range info.Operations {
						fmt.Fprintf(w, "  %s\n", replay.ShortName(op))
					}
				}
			})
		},
	}
}

func describeServices(opts *RootOptions) ([]ServiceInfo, error) {
	c := opts.Catalog
	var infos []ServiceInfo
	for _, name := range c.Services() {
		current, err := c.Current(name)
		if err != nil {
			return nil, err
		}
		ops, err := c.Operations(name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, ServiceInfo{
			Name:       name,
			Current:    current.String(),
			Operations: ops,
			Schemas:    versionStrings(c.Schemas.Versions(name)),
		})
	}
	return infos, nil
}

func versionStrings(versions []apiversion.Version) []string {
	out := make([]string, len(versions))
	for i, v := range versions {
		out[i] = v.String()
	}
	return out
}
