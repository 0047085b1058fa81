package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/downfa11-org/go-recordlog/pkg/client"
	"github.com/downfa11-org/go-recordlog/pkg/disk"
	"github.com/downfa11-org/go-recordlog/pkg/segment"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

const (
	addrFlagName    = "addr"
	timeoutFlagName = "timeout"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	return buildApp(out).Run(append([]string{"cli"}, args...))
}

func buildApp(out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "cli"
	app.Usage = "inspect log files and talk to a record log broker"
	app.Writer = out
	app.ErrWriter = out
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  addrFlagName,
			Value: "http://localhost:8123",
			Usage: "broker address",
		},
		cli.DurationFlag{
			Name:  timeoutFlagName,
			Value: 10 * time.Second,
			Usage: "request timeout",
		},
	}
	app.Commands = []cli.Command{
		dumpCommand(out),
		produceCommand(out),
		fetchCommand(out),
	}
	app.Action = func(c *cli.Context) error {
		if c.NArg() > 0 {
			return errors.Errorf("unknown command '%s'", c.Args().First())
		}
		return errors.New("missing command")
	}
	return app
}

func dumpCommand(out io.Writer) cli.Command {
	return cli.Command{
		Name:      "dump",
		Usage:     "print every complete segment of a log file",
		ArgsUsage: "<log file>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("dump takes one log file")
			}
			return dump(c.Args().First(), out)
		},
	}
}

func produceCommand(out io.Writer) cli.Command {
	return cli.Command{
		Name:      "produce",
		Usage:     "append one record to a partition",
		ArgsUsage: "<partition> <key> <value>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 3 {
				return errors.New("produce takes partition, key and value")
			}
			partitionID, err := parsePartition(c.Args().Get(0))
			if err != nil {
				return err
			}
			timeout := c.GlobalDuration(timeoutFlagName)
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			offset, err := client.NewClient(c.GlobalString(addrFlagName), timeout).
				Produce(ctx, partitionID, c.Args().Get(1), c.Args().Get(2))
			if err != nil {
				return errors.Wrapf(err, "producing to partition %d", partitionID)
			}
			fmt.Fprintln(out, offset)
			return nil
		},
	}
}

func fetchCommand(out io.Writer) cli.Command {
	return cli.Command{
		Name:      "fetch",
		Usage:     "print the cached tail of a partition",
		ArgsUsage: "<partition>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("fetch takes a partition")
			}
			partitionID, err := parsePartition(c.Args().First())
			if err != nil {
				return err
			}
			timeout := c.GlobalDuration(timeoutFlagName)
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			records, err := client.NewClient(c.GlobalString(addrFlagName), timeout).Fetch(ctx, partitionID)
			if err != nil {
				return errors.Wrapf(err, "fetching partition %d", partitionID)
			}
			for _, r := range records {
				fmt.Fprintln(out, r)
			}
			return nil
		},
	}
}

// dump prints every complete segment of a log file, one block per segment.
func dump(path string, out io.Writer) error {
	if _, err := os.Stat(path); err != nil {
		return errors.Wrap(err, "opening log file")
	}
	return disk.NewLogReader(path).Scan(func(position uint64, seg segment.Segment) error {
		fmt.Fprintf(out, "partition #%d (position %d)\n", seg.PartitionID, position)
		for _, r := range seg.Records {
			fmt.Fprintln(out, r)
		}
		_, err := fmt.Fprintln(out)
		return err
	})
}

func parsePartition(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid partition '%s'", s)
	}
	return uint32(id), nil
}
