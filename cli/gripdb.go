/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

/*
GripDB is a property graph query server. Graphs are queried with GripQL, a
JSON encoded traversal language. Graphs can be held in memory or mapped onto
external row sources which are reached via gRPC.

Available commands:

- server: Start the GripDB server (optionally importing or exporting graphs).

- console: Interactive console for a running server.

- query: Run a single GripQL query and print the results.

- load: Bulk load graph elements into a running server.

- gripper-source: Serve newline delimited JSON files as row source collections.
*/
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"devt.de/krotik/common/errorutil"
	"devt.de/krotik/common/fileutil"
	"devt.de/krotik/common/termutil"
	"devt.de/krotik/gripdb/api/ac"
	"devt.de/krotik/gripdb/config"
	"devt.de/krotik/gripdb/console"
	"devt.de/krotik/gripdb/graph"
	"devt.de/krotik/gripdb/gripper"
	"devt.de/krotik/gripdb/gripql"
	"devt.de/krotik/gripdb/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

/*
clientOptions are the connection options of all client commands.
*/
type clientOptions struct {
	url         string
	user        string
	password    string
	token       string
	credentials string
}

/*
rootCmd creates the root command with all its subcommands.
*/
func rootCmd() *cobra.Command {
	var configFile string
	var logLevel string

	cmd := &cobra.Command{
		Use:          "gripdb",
		Short:        "GripDB property graph query server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err == nil {
				logrus.SetLevel(level)
			}
			return err
		},
	}

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", config.DefaultConfigFile, "Config file")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(serverCmd(&configFile))
	cmd.AddCommand(consoleCmd(&configFile))
	cmd.AddCommand(queryCmd(&configFile))
	cmd.AddCommand(loadCmd(&configFile))
	cmd.AddCommand(gripperSourceCmd())

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), fmt.Sprintf("GripDB %v", config.ProductVersion))
		},
	})

	return cmd
}

// Server
// ======

func serverCmd(configFile *string) *cobra.Command {
	var importFile string
	var exports []string
	var noServ bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start GripDB server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadConfigFile(*configFile); err != nil {
				return err
			}

			server.StartServerWithSingleOp(func(gm *graph.Manager) bool {
				if err := handleServerCommandLine(gm, importFile, exports); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
					return true
				}
				return noServ
			})

			return nil
		},
	}

	cmd.Flags().StringVar(&importFile, "import", "", "Bulk load graph elements from a file before starting")
	cmd.Flags().StringSliceVar(&exports, "export", nil, "Export a graph to a file (graph=file)")
	cmd.Flags().BoolVar(&noServ, "no-serv", false, "Do not start the server after initialization")

	return cmd
}

/*
handleServerCommandLine imports and exports graphs before the server starts.
*/
func handleServerCommandLine(gm *graph.Manager, importFile string, exports []string) error {

	if importFile != "" {
		fmt.Println("Importing from:", importFile)

		in, err := os.Open(importFile)
		if err != nil {
			return err
		}
		defer in.Close()

		res, err := gm.BulkLoad(context.Background(), in)
		if err != nil {
			return err
		}

		fmt.Println(fmt.Sprintf("Inserted %v elements (%v errors)", res.InsertCount, res.ErrorCount))

		for _, e := range res.Errors {
			fmt.Println(e)
		}
	}

	for _, export := range exports {
		name, file, ok := strings.Cut(export, "=")
		if !ok || name == "" || file == "" {
			return fmt.Errorf("Invalid export %v (expected graph=file)", export)
		}

		fmt.Println(fmt.Sprintf("Exporting graph %s to %s", name, file))

		if err := exportGraph(gm, name, file); err != nil {
			return err
		}
	}

	return nil
}

/*
exportGraph writes a single graph to a file.
*/
func exportGraph(gm *graph.Manager, name, file string) error {
	out, err := os.Create(file)
	if err != nil {
		return err
	}

	err = gm.ExportGraph(context.Background(), name, out)

	if cerr := out.Close(); err == nil {
		err = cerr
	}

	return err
}

// Console
// =======

func consoleCmd(configFile *string) *cobra.Command {
	var opts clientOptions
	var cmdfile, cmdline string

	cmd := &cobra.Command{
		Use:   "console",
		Short: "GripDB server console",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCliConsole(*configFile, &opts, cmdfile, cmdline)
		},
	}

	addClientFlags(cmd, &opts)

	cmd.Flags().StringVar(&cmdfile, "file", "", "Read commands from a file and exit")
	cmd.Flags().StringVar(&cmdline, "exec", "", "Execute a single line and exit")

	return cmd
}

/*
runCliConsole runs the server console on the commandline.
*/
func runCliConsole(configFile string, opts *clientOptions, cmdfile, cmdline string) error {
	var clt termutil.ConsoleLineTerminal

	// Credentials are asked for on the terminal

	con, err := newConsole(configFile, opts, os.Stdout, func() (string, string) {
		line, err := clt.NextLinePrompt("Login username: ", 0x0)
		errorutil.AssertOk(err)
		user := strings.TrimRight(line, "\r\n")

		pass, err := clt.NextLinePrompt("Password: ", '*')
		errorutil.AssertOk(err)

		return user, pass
	})
	if err != nil {
		return err
	}

	interactive := cmdfile == "" && cmdline == ""

	if interactive {
		fmt.Println(fmt.Sprintf("GripDB %v - Console", config.ProductVersion))
	}

	isExitLine := func(s string) bool {
		return s == "exit" || s == "q" || s == "quit" || s == "bye" || s == "\x04"
	}

	clt, err = termutil.NewConsoleLineTerminal(os.Stdout)

	if err == nil {
		if cmdfile != "" {
			var file *os.File

			// Read commands from a file

			if file, err = os.Open(cmdfile); err == nil {
				defer file.Close()

				clt, err = termutil.AddFileReadingWrapper(clt, file, true)
			}

		} else if cmdline != "" {
			var buf bytes.Buffer

			buf.WriteString(fmt.Sprintln(cmdline))

			// Read commands from a single line

			clt, err = termutil.AddFileReadingWrapper(clt, &buf, true)

		} else {
			var names []string

			for _, c := range con.Commands() {
				names = append(names, c.Name())
			}

			// Add history and command completion

			histfile := filepath.Join(filepath.Dir(os.Args[0]), ".gripdb_console_history")

			if clt, err = termutil.AddHistoryMixin(clt, histfile, isExitLine); err == nil {
				clt, err = termutil.AddAutoCompleteMixin(clt, termutil.NewWordListDict(names))
			}
		}
	}

	if err != nil {
		return err
	}

	if err = clt.StartTerm(); err == nil {
		var line string

		defer clt.StopTerm()

		if interactive {
			fmt.Println("Type 'q' or 'quit' to exit the shell and '?' to get help")
		}

		line, err = clt.NextLine()
		for err == nil && !isExitLine(line) {

			if _, cerr := con.Run(line); cerr != nil {

				// Output any error

				fmt.Fprintln(clt, cerr.Error())
			}

			line, err = clt.NextLine()
		}
	}

	return err
}

// Query and load
// ==============

func queryCmd(configFile *string) *cobra.Command {
	var opts clientOptions

	cmd := &cobra.Command{
		Use:   "query <graph> <query|@file>",
		Short: "Run a GripQL query and print the results",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			con, err := newConsole(*configFile, &opts, cmd.OutOrStdout(), nil)
			if err != nil {
				return err
			}

			return runQuery(con, args[0], args[1])
		},
	}

	addClientFlags(cmd, &opts)

	return cmd
}

/*
runQuery sends a query to a graph and writes all result records. A query
which starts with @ is read from a file.
*/
func runQuery(con *console.GripDBConsole, graph string, query string) error {
	body := []byte(query)

	if strings.HasPrefix(query, "@") {
		var err error

		if body, err = os.ReadFile(query[1:]); err != nil {
			return err
		}
	}

	if _, err := gripql.ParseQuery(body); err != nil {
		return err
	}

	con.SetGraph(graph)

	_, err := con.Run(string(bytes.TrimSpace(body)))

	return err
}

func loadCmd(configFile *string) *cobra.Command {
	var opts clientOptions

	cmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Bulk load graph elements into a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			con, err := newConsole(*configFile, &opts, cmd.OutOrStdout(), nil)
			if err != nil {
				return err
			}

			return con.CommandMap[console.CommandLoad].Run(args, con)
		},
	}

	addClientFlags(cmd, &opts)

	return cmd
}

// Row source
// ==========

func gripperSourceCmd() *cobra.Command {
	var listen string
	var idField string
	var tables []string

	cmd := &cobra.Command{
		Use:   "gripper-source",
		Short: "Serve newline delimited JSON files as row source collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			drivers, err := loadTables(tables, idField)
			if err != nil {
				return err
			}

			lis, err := net.Listen("tcp", listen)
			if err != nil {
				return err
			}

			ts := gripper.NewTableServer(drivers)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

			go func() {
				<-sig
				logrus.Info("Stopping row source")
				ts.Stop()
			}()

			logrus.WithFields(logrus.Fields{
				"listen":      lis.Addr().String(),
				"collections": len(drivers),
			}).Info("Serving row source")

			return ts.Serve(lis)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":50051", "Address to listen on")
	cmd.Flags().StringVar(&idField, "id-field", "id", "Field which holds the row id")
	cmd.Flags().StringSliceVar(&tables, "table", nil, "Collection to serve (name=file)")

	return cmd
}

/*
loadTables loads a list of name=file collections.
*/
func loadTables(tables []string, idField string) (map[string]gripper.Driver, error) {
	drivers := make(map[string]gripper.Driver)

	if len(tables) == 0 {
		return nil, fmt.Errorf("No tables given")
	}

	sort.Strings(tables)

	for _, t := range tables {
		name, file, ok := strings.Cut(t, "=")
		if !ok || name == "" || file == "" {
			return nil, fmt.Errorf("Invalid table %v (expected name=file)", t)
		}

		if _, ok := drivers[name]; ok {
			return nil, fmt.Errorf("Duplicate table %v", name)
		}

		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}

		md, err := gripper.LoadJSONLines(f, idField)
		f.Close()

		if err != nil {
			return nil, fmt.Errorf("Could not load table %v: %v", name, err)
		}

		drivers[name] = md
	}

	return drivers, nil
}

// Client helpers
// ==============

func addClientFlags(cmd *cobra.Command, opts *clientOptions) {
	cmd.Flags().StringVar(&opts.url, "url", "", "URL of the GripDB server (default from config)")
	cmd.Flags().StringVar(&opts.user, "user", "", "User name")
	cmd.Flags().StringVar(&opts.password, "password", "", "Password")
	cmd.Flags().StringVar(&opts.token, "token", "", "Bearer token")
	cmd.Flags().StringVar(&opts.credentials, "credentials", "", "Credential file to read the user's credential from")
}

/*
newConsole creates a console object which is connected to the server.
*/
func newConsole(configFile string, opts *clientOptions, out io.Writer,
	getCredentials func() (string, string)) (*console.GripDBConsole, error) {

	authorization, err := resolveAuthorization(opts)
	if err != nil {
		return nil, err
	}

	url := opts.url
	if url == "" {
		url = serverURLFromConfig(configFile)
	}

	con := console.NewConsole(url, out, getCredentials,
		func(args []string, exportBuf *bytes.Buffer) error {

			// Export data to a chosen file

			filename := "export.out"

			if len(args) > 0 {
				filename = args[0]
			}

			return os.WriteFile(filename, exportBuf.Bytes(), 0666)
		})

	con.SetAuthorization(authorization)

	return con, nil
}

/*
resolveAuthorization builds the Authorization header from the client options.
*/
func resolveAuthorization(opts *clientOptions) (string, error) {
	c := &ac.Credential{User: opts.user, Password: opts.password, Token: opts.token}

	if opts.credentials != "" {
		if ok, _ := fileutil.PathExists(opts.credentials); !ok {
			return "", fmt.Errorf("Credential file %v does not exist", opts.credentials)
		}

		if opts.user == "" {
			return "", fmt.Errorf("A user is needed to select a credential from %v", opts.credentials)
		}

		creds, err := ac.LoadCredentials(opts.credentials)
		if err != nil {
			return "", err
		}

		c = nil

		for _, cred := range creds {
			if cred.User == opts.user {
				c = cred
				break
			}
		}

		if c == nil {
			return "", fmt.Errorf("No credential for user %v in %v", opts.user, opts.credentials)
		}
	}

	if c.Authorization == "" && c.Token == "" && c.User == "" {
		return "", nil
	}

	return ac.AuthorizationHeader(c), nil
}

/*
serverURLFromConfig gets the server URL from the config file or the default
config.
*/
func serverURLFromConfig(configFile string) string {
	host := fmt.Sprint(config.DefaultConfig[config.HTTPHost])
	port := fmt.Sprint(config.DefaultConfig[config.HTTPPort])

	if ok, _ := fileutil.PathExists(configFile); ok {
		if cfg, _ := fileutil.LoadConfig(configFile, config.DefaultConfig); cfg != nil {
			host = fileutil.ConfStr(cfg, config.HTTPHost)
			port = fileutil.ConfStr(cfg, config.HTTPPort)
		}
	}

	return fmt.Sprintf("http://%s:%s", host, port)
}
