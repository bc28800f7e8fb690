// Command warrenctl inspects the durable request records a warren node
// keeps in its record store: list keys, verify checksums and envelopes,
// and dump decoded record headers.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/warrennet/warren/checksum"
	"github.com/warrennet/warren/persist"
	"github.com/warrennet/warren/request"
	"github.com/warrennet/warren/store"
	"github.com/warrennet/warren/store/postgres"
	"github.com/warrennet/warren/store/redis"
	"github.com/warrennet/warren/store/sqlite"
)

const version = "0.3.0"

var (
	flagBackend string
	flagDSN     string

	rootCmd = &cobra.Command{
		Use:   "warrenctl",
		Short: "inspect warren durable request records",
		Long: fmt.Sprintf(`warrenctl (v%s)

Offline inspection of the record store a warren node checkpoints its
crash-persistent requests into. Run it against a stopped node's store;
it never takes write locks beyond what the driver needs to read.`, version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of warrenctl",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("warrenctl v%s\n", version)
		},
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List durable record keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, rs store.RecordStore) error {
				keys, err := rs.Keys(ctx)
				if err != nil {
					return err
				}
				for _, k := range keys {
					fmt.Println(k)
				}
				fmt.Fprintf(os.Stderr, "%d record(s)\n", len(keys))
				return nil
			})
		},
	}

	verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Verify checksum and envelope of every stored record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, rs store.RecordStore) error {
				keys, err := rs.Keys(ctx)
				if err != nil {
					return err
				}
				checker := checksum.NewCRC32()
				var bad int
				for _, k := range keys {
					blob, err := rs.Get(ctx, k)
					if err != nil {
						fmt.Printf("%s\tREAD ERROR\t%v\n", k, err)
						bad++
						continue
					}
					id, payload, err := persist.OpenRecord(blob, checker)
					if err != nil {
						fmt.Printf("%s\tCORRUPT\t%v\n", k, err)
						bad++
						continue
					}
					if _, err := request.DecodeHeader(payload, id); err != nil {
						fmt.Printf("%s\tBAD RECORD\t%v\n", k, err)
						bad++
						continue
					}
					fmt.Printf("%s\tOK\n", k)
				}
				if bad > 0 {
					return fmt.Errorf("%d of %d record(s) failed %s verification", bad, len(keys), checker.Name())
				}
				fmt.Fprintf(os.Stderr, "%d record(s) verified (%s)\n", len(keys), checker.Name())
				return nil
			})
		},
	}

	dumpCmd = &cobra.Command{
		Use:   "dump <key>",
		Short: "Decode and print one stored record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, rs store.RecordStore) error {
				blob, err := rs.Get(ctx, args[0])
				if err != nil {
					return err
				}
				checker := checksum.NewCRC32()
				id, payload, err := persist.OpenRecord(blob, checker)
				if err != nil {
					return err
				}
				h, err := request.DecodeHeader(payload, id)
				if err != nil {
					return err
				}
				fmt.Printf("identifier:  %s\n", h.Identity.Identifier)
				fmt.Printf("kind:        %s\n", h.Identity.Kind)
				if h.Identity.Shared {
					fmt.Printf("queue:       shared\n")
				} else {
					fmt.Printf("queue:       client %q\n", h.Identity.ClientName)
				}
				fmt.Printf("realtime:    %v\n", h.Realtime)
				fmt.Printf("verbosity:   %d\n", h.Verbosity)
				fmt.Printf("priority:    %d\n", h.PriorityClass)
				fmt.Printf("submitted:   %s\n", h.StartupTime.UTC().Format(time.RFC3339))
				if h.ClientToken != nil {
					fmt.Printf("token:       %q\n", *h.ClientToken)
				}
				fmt.Printf("finished:    %v\n", h.Finished)
				fmt.Printf("checksum:    %s (%d-byte trailer)\n", checker.Name(), checker.Length())
				fmt.Printf("payload:     %d byte(s)\n", len(payload))
				return nil
			})
		},
	}
)

// withStore opens the selected backend, runs fn, and closes it.
func withStore(fn func(context.Context, store.RecordStore) error) error {
	ctx := context.Background()
	rs, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer rs.Close()
	return fn(ctx, rs)
}

func openStore(ctx context.Context) (store.RecordStore, error) {
	switch flagBackend {
	case "sqlite":
		return sqlite.Open(flagDSN)
	case "postgres":
		return postgres.Connect(ctx, flagDSN)
	case "redis":
		opts, err := goredis.ParseURL(flagDSN)
		if err != nil {
			return nil, fmt.Errorf("warrenctl: parse redis url: %w", err)
		}
		return redis.New(goredis.NewClient(opts)), nil
	default:
		return nil, fmt.Errorf("warrenctl: unknown backend %q (sqlite, postgres, redis)", flagBackend)
	}
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "sqlite",
		"record store backend (sqlite, postgres, redis)")
	rootCmd.PersistentFlags().StringVar(&flagDSN, "dsn", "warren.db",
		"store location: file path (sqlite), connection string (postgres), or url (redis)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
