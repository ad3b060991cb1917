// SPDX-License-Identifier: GPL-3.0-or-later

// Command syslisten receives syslog messages over UDP, TCP, or TLS and
// logs each of them as a structured record.
//
// The listener is configured by a properties file (syslog-server.properties)
// whose values can be overridden by flags. See `syslisten --help`.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bassosimone/syslisten"
	"github.com/spf13/cobra"
)

// version is set at build time using -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// flags contains the command line overrides.
type flags struct {
	config     string
	socketType string
	address    string
	port       string
	logFile    string
	logLevel   string
}

// apply overrides the settings with the flags that were set.
func (f *flags) apply(cmd *cobra.Command, s *settings) {
	overrides := []struct {
		name  string
		value string
		dest  *string
	}{
		{"socket-type", f.socketType, &s.SocketType},
		{"address", f.address, &s.Address},
		{"port", f.port, &s.Port},
		{"log-file", f.logFile, &s.LogFile},
		{"log-level", f.logLevel, &s.LogLevel},
	}
	for _, o := range overrides {
		if cmd.Flags().Changed(o.name) {
			*o.dest = o.value
		}
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "syslisten",
		Short:         "Receive syslog messages over UDP, TCP, or TLS",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := run(cmd, f, stderr)
			if err != nil {
				fmt.Fprintf(stderr, "syslisten: %s\n", err.Error())
			}
			return err
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	fs := root.Flags()
	fs.StringVar(&f.config, "config", "", "path of the properties file")
	fs.StringVar(&f.socketType, "socket-type", "", "transport: UDP, TCP, or TLS")
	fs.StringVar(&f.address, "address", "", "address to listen on")
	fs.StringVar(&f.port, "port", "", "port to listen on")
	fs.StringVar(&f.logFile, "log-file", "", "rotating log file (empty disables)")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn, or error")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}

// run listens until the command context is done.
func run(cmd *cobra.Command, f *flags, stderr io.Writer) error {
	path, err := findConfigFile(f.config)
	if err != nil {
		return err
	}
	s, err := loadSettings(path)
	if err != nil {
		return err
	}
	f.apply(cmd, &s)

	logger, closeLog := newLogger(stderr, s.LogFile, s.LogLevel)
	defer closeLog()

	lc, err := s.listenerConfig()
	if err != nil {
		return err
	}

	listener, err := syslisten.NewListener(syslisten.NewConfig(), lc, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := listener.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	listener.Close()
	listener.Wait()
	return nil
}
