package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipshare/internal/ipc"
	"go.klb.dev/clipshare/internal/logging"
	"go.klb.dev/clipshare/internal/rpc"
	"go.klb.dev/clipshare/internal/tlsconf"
)

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "status",
		Short:   "Show the daemon's clipboard state",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(v, logging.OneShot)
			return runStatus(cmd.Context(), v, cmd.OutOrStdout())
		},
	}

	cmd.Flags().Bool("json", false, "print the raw status document")
	addDaemonFlags(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runStatus(ctx context.Context, v *viper.Viper, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	url, tr, err := statusTransport(v)
	if err != nil {
		return err
	}
	hc := &http.Client{Timeout: 5 * time.Second, Transport: tr}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if tok := v.GetString("token"); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status: %s", resp.Status)
	}

	if v.GetBool("json") {
		_, err := io.Copy(out, resp.Body)
		return err
	}
	var st rpc.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return fmt.Errorf("status: %w", err)
	}
	return printStatus(out, st)
}

// statusTransport reaches /status over TLS for --remote and over the Unix
// socket otherwise.
func statusTransport(v *viper.Viper) (string, *http.Transport, error) {
	if remote := v.GetString("remote"); remote != "" {
		cfg, err := tlsconf.ClientConfig(v.GetString("token"))
		if err != nil {
			return "", nil, fmt.Errorf("--remote requires --token: %w", err)
		}
		return "https://" + remote + "/status", &http.Transport{TLSClientConfig: cfg}, nil
	}
	path := v.GetString("socket")
	if !ipc.IsRunning(path) {
		return "", nil, fmt.Errorf("no clipshare daemon on %s", path)
	}
	return "http://clipshare/status", &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", path)
		},
	}, nil
}

func printStatus(out io.Writer, st rpc.Status) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "version\t%s\n", st.Version)
	fmt.Fprintf(tw, "attached\t%d\n", st.Attached)
	fmt.Fprintf(tw, "owner\t%#x\n", uint32(st.State.Owner))
	if st.State.Open {
		fmt.Fprintf(tw, "opener\t%#x\n", uint32(st.State.Opener))
	} else {
		fmt.Fprintln(tw, "opener\t-")
	}
	fmt.Fprintf(tw, "viewer\t%#x\n", uint32(st.State.Viewer))
	fmt.Fprintf(tw, "seq\t%d\n", st.State.Seq)
	fmt.Fprintf(tw, "listeners\t%d\n", st.State.Listeners)
	fmt.Fprintf(tw, "formats\t%d\n", len(st.State.Formats))
	return tw.Flush()
}
