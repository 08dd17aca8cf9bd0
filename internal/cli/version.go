package cli

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/xmmarcotte/marcotte-dev/internal/storage"
)

type versionInfo struct {
	Version         string `json:"version" yaml:"version"`
	BuildTime       string `json:"build_time" yaml:"build_time"`
	GoVersion       string `json:"go_version" yaml:"go_version"`
	BuildMode       string `json:"build_mode" yaml:"build_mode"`
	Driver          string `json:"sqlite_driver" yaml:"sqlite_driver"`
	VectorExtension bool   `json:"vector_extension" yaml:"vector_extension"`
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version and build information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versionInfo{
				Version:         Version,
				BuildTime:       BuildTime,
				GoVersion:       runtime.Version(),
				BuildMode:       storage.BuildMode,
				Driver:          storage.DriverName,
				VectorExtension: storage.VectorExtensionAvailable,
			}
			return a.print(out(cmd), info, func(w io.Writer) error {
				fmt.Fprintf(w, "spot %s\n", info.Version)
				fmt.Fprintf(w, "Build Time: %s\n", info.BuildTime)
				fmt.Fprintf(w, "Go: %s\n", info.GoVersion)
				fmt.Fprintf(w, "Build Mode: %s\n", info.BuildMode)
				fmt.Fprintf(w, "SQLite Driver: %s\n", info.Driver)
				_, err := fmt.Fprintf(w, "Vector Extension: %v\n", info.VectorExtension)
				return err
			})
		},
	}
}
