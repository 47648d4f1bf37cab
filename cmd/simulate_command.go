package main

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/spreads/client/internal/certs"
	"github.com/spreads/client/internal/mdns"
	"github.com/spreads/client/internal/simserver"
	"github.com/spreads/client/internal/storage"
)

func newSimulateCommand(ctx *commandContext) *cobra.Command {
	var (
		addr     string
		dbPath   string
		withMDNS bool
		withTLS  bool
		showQR   bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a local stand-in spreads server for development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			sim := cfg.Simulator
			if cmd.Flags().Changed("addr") {
				sim.Addr = addr
			}
			if cmd.Flags().Changed("db") {
				sim.DB = dbPath
			}
			if cmd.Flags().Changed("mdns") {
				sim.MDNS = withMDNS
			}
			if cmd.Flags().Changed("tls") {
				sim.TLS = withTLS
			}

			if sim.DB != ":memory:" {
				if err := os.MkdirAll(filepath.Dir(sim.DB), 0700); err != nil {
					return fmt.Errorf("failed to create database directory: %w", err)
				}
			}
			store, err := storage.Open(sim.DB)
			if err != nil {
				return err
			}
			defer store.Close()

			ln, err := net.Listen("tcp", sim.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", sim.Addr, err)
			}

			srv := simserver.New(store, simserver.Options{
				CaptureDelay:      time.Duration(sim.CaptureDelayMs) * time.Millisecond,
				StageDelay:        time.Duration(sim.StageDelayMs) * time.Millisecond,
				CommandsPerSecond: sim.CommandsPerSecond,
			})

			tcpAddr := ln.Addr().(*net.TCPAddr)
			scheme := "http"
			if sim.TLS {
				scheme = "https"
			}
			origin := publicOrigin(scheme, tcpAddr)
			out := cmd.OutOrStdout()

			if sim.TLS {
				info, err := certs.Ensure(certs.Config{
					CertPath: sim.CertFile,
					KeyPath:  sim.KeyFile,
					Hosts:    []string{originHost(origin)},
				})
				if err != nil {
					ln.Close()
					return err
				}
				tlsCfg, err := certs.ServerConfig(info)
				if err != nil {
					ln.Close()
					return err
				}
				ln = tls.NewListener(ln, tlsCfg)
				if info.Generated {
					fmt.Fprintf(out, "Generated certificate %s\n", info.CertPath)
				}
				fmt.Fprintf(out, "Certificate fingerprint %s\n", info.Fingerprint)
				fmt.Fprintf(out, "Connect with: spreadsctl --server %s --fingerprint %s\n", origin, info.Fingerprint)
			}
			fmt.Fprintf(out, "Simulator serving %s (database %s)\n", origin, sim.DB)

			if sim.MDNS {
				advertiser := mdns.NewAdvertiser(mdns.Config{Port: tcpAddr.Port, Secure: sim.TLS})
				if err := advertiser.Start(); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: mDNS advertisement failed: %v\n", err)
				} else {
					defer advertiser.Stop()
					fmt.Fprintf(out, "Advertising %s on the local network\n", mdns.ServiceType)
				}
			}
			if showQR {
				displayServerQR(out, origin)
			}

			return srv.Serve(cmd.Context(), ln)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, 127.0.0.1:5000)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default ~/.spreads/simulator.db)")
	cmd.Flags().BoolVar(&withMDNS, "mdns", false, "Advertise the simulator via mDNS")
	cmd.Flags().BoolVar(&withTLS, "tls", false, "Serve https/wss with a self-signed certificate")
	cmd.Flags().BoolVar(&showQR, "qr", false, "Print the server URL as a QR code")
	return cmd
}

// publicOrigin is the origin other machines should use. An unspecified
// listen address is replaced by the preferred outbound interface.
func publicOrigin(scheme string, addr *net.TCPAddr) string {
	host := addr.IP.String()
	if addr.IP.IsUnspecified() {
		host = "127.0.0.1"
		if ip := preferredOutboundIP(); ip != "" {
			host = ip
		}
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(addr.Port))
}

// originHost returns the host part of an origin built by publicOrigin.
func originHost(origin string) string {
	_, rest, _ := strings.Cut(origin, "://")
	host, _, err := net.SplitHostPort(rest)
	if err != nil {
		return rest
	}
	return host
}

// preferredOutboundIP returns the local address the OS would route
// external traffic from. Dialing UDP sends no packets.
func preferredOutboundIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

// displayServerQR prints origin as a terminal QR code with a plain-text
// fallback underneath.
func displayServerQR(w io.Writer, origin string) {
	qr, err := qrcode.New(origin, qrcode.Medium)
	if err != nil {
		fmt.Fprintf(w, "Error generating QR code: %v\n", err)
		return
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, qr.ToSmallString(false))
	fmt.Fprintf(w, "  Server: %s\n\n", origin)
}
