package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/mkb23/overcode/internal/webapi"
)

var serveAddrFlag string

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: groupDaemons,
	Short:   "Serve GET /api/status and GET /health for the --tmux-session scope",
	Long: `Serve the read-only HTTP surface this module implements: GET /api/status
(the monitor daemon's published snapshot) and GET /health (a freshness
check on it). The remaining HTTP surface (/api/timeline, /api/analytics/*,
the POST control surface) is documented but intentionally out of scope;
pair this with an external process that owns those routes if needed.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddrFlag, "addr", "127.0.0.1:8787", "address to listen on")
}

func runServe(cmd *cobra.Command, _ []string) error {
	p, err := newPaths()
	if err != nil {
		return err
	}

	reg := newRegistry(p)
	tmux := newTmux(p)
	h := webapi.New(p, tmuxSessionFlag, reg, tmux)
	srv := &http.Server{Addr: serveAddrFlag, Handler: h}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	fmt.Printf("overcode: serving /api/status and /health on %s (tmux_session=%s)\n", serveAddrFlag, tmuxSessionFlag)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-cmd.Context().Done():
		return srv.Close()
	}
}
