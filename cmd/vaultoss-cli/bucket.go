package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/eniz1806/VaultOSS/internal/inventory"
	"github.com/eniz1806/VaultOSS/internal/osserr"
)

func runBucket(args []string) {
	if len(args) == 0 {
		fmt.Println(`Usage: vaultoss-cli bucket <subcommand>

Subcommands:
  list                        List all containers
  create <name>               Create a container
  delete <name>               Delete an empty container
  info <name>                 Show size, object count and expiration rule
  purge <name>                Delete every object in a container
  versioning <name> [on|off]  Show or change versioning of the backing bucket
  inventory <name> [--dest=<bucket>]  Write a CSV listing into the store`)
		os.Exit(1)
	}

	switch args[0] {
	case "list", "ls":
		bucketList()
	case "create":
		if len(args) < 2 {
			fatal("bucket create requires a bucket name")
		}
		bucketCreate(args[1])
	case "delete", "rm":
		if len(args) < 2 {
			fatal("bucket delete requires a bucket name")
		}
		bucketDelete(args[1])
	case "info":
		if len(args) < 2 {
			fatal("bucket info requires a bucket name")
		}
		bucketInfo(args[1])
	case "purge":
		if len(args) < 2 {
			fatal("bucket purge requires a bucket name")
		}
		bucketPurge(args[1])
	case "versioning":
		if len(args) < 2 {
			fatal("bucket versioning requires a bucket name")
		}
		bucketVersioning(args[1], args[2:])
	case "inventory":
		bucketInventory(args[1:])
	default:
		fatal("unknown bucket subcommand: " + args[0])
	}
}

func bucketList() {
	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	names, err := c.Store.ListContainers(ctx)
	if err != nil {
		fatal(err.Error())
	}
	if len(names) == 0 {
		fmt.Println("No buckets found.")
		return
	}

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name})
	}
	printTable([]string{"NAME"}, rows)
}

func bucketCreate(name string) {
	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	exists, err := c.Store.ContainerExists(ctx, name)
	if err != nil {
		fatal(err.Error())
	}
	if exists {
		fmt.Printf("Bucket '%s' already exists.\n", name)
		return
	}
	if err := c.Store.CreateContainer(ctx, name); err != nil {
		fatal(err.Error())
	}
	fmt.Printf("Bucket '%s' created.\n", name)
}

func bucketDelete(name string) {
	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	err := c.Store.RemoveContainer(ctx, name)
	switch {
	case err == nil:
		fmt.Printf("Bucket '%s' deleted.\n", name)
	case osserr.IsConflict(err):
		fatal(fmt.Sprintf("bucket '%s' is not empty; run 'bucket purge %s' first", name, name))
	default:
		fatal(err.Error())
	}
}

func bucketInfo(name string) {
	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	props, err := c.Lifecycle.Properties(ctx, name)
	if err != nil {
		fatal(err.Error())
	}

	expiration := "none"
	if props.Rule != nil {
		expiration = fmt.Sprintf("%d days (%s, rule %s)", props.Rule.ExpirationDays, props.Rule.Status, props.Rule.ID)
	}
	printTable([]string{"FIELD", "VALUE"}, [][]string{
		{"Name", props.Container},
		{"Bucket", props.Bucket},
		{"Prefix", props.Prefix},
		{"Objects", strconv.FormatInt(props.Objects, 10)},
		{"Size", formatSize(props.Size)},
		{"Expiration", expiration},
	})
}

func bucketPurge(name string) {
	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	n, err := c.Store.Purge(ctx, name)
	if err != nil {
		fatal(err.Error())
	}
	fmt.Printf("Purged %d object(s) from '%s'.\n", n, name)
}

func bucketVersioning(name string, args []string) {
	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	if len(args) > 0 {
		var enabled bool
		switch args[0] {
		case "on", "enable", "enabled":
			enabled = true
		case "off", "suspend", "suspended":
		default:
			fatal("versioning state must be on or off")
		}
		if err := c.Store.SetVersioning(ctx, name, enabled); err != nil {
			fatal(err.Error())
		}
	}

	status, err := c.Store.Versioning(ctx, name)
	if err != nil {
		fatal(err.Error())
	}
	if status == "" {
		status = "Unversioned"
	}
	fmt.Printf("Versioning for '%s': %s\n", name, status)
}

func bucketInventory(args []string) {
	pos, opts := splitArgs(args)
	if len(pos) < 1 {
		fatal("bucket inventory requires a bucket name")
	}
	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	key, err := inventory.NewReporter(c.Store, nil, opts["dest"], 0).Report(ctx, pos[0])
	if err != nil {
		fatal(err.Error())
	}
	dest := opts["dest"]
	if dest == "" {
		dest = pos[0]
	}
	fmt.Printf("Inventory written to %s/%s\n", dest, key)
}
