package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

func runLifecycle(args []string) {
	if len(args) == 0 {
		fmt.Println(`Usage: vaultoss-cli lifecycle <subcommand>

Subcommands:
  list <bucket>                                 List expiration rules
  set <bucket> <days> [--prefix=<prefix>]       Expire objects after <days>
  rm <bucket> [--prefix=<prefix>]               Remove an expiration rule
  reconcile                                     Apply expiring_prefixes from --config`)
		os.Exit(1)
	}

	switch args[0] {
	case "list", "ls":
		lifecycleList(args[1:])
	case "set":
		lifecycleSet(args[1:])
	case "rm", "remove":
		lifecycleRemove(args[1:])
	case "reconcile":
		lifecycleReconcile()
	default:
		fatal("unknown lifecycle subcommand: " + args[0])
	}
}

func lifecycleList(args []string) {
	if len(args) < 1 {
		fatal("lifecycle list requires a bucket name")
	}
	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	rules, err := c.Lifecycle.Rules(ctx, args[0])
	if err != nil {
		fatal(err.Error())
	}
	if len(rules) == 0 {
		fmt.Println("No expiration rules.")
		return
	}
	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		rows = append(rows, []string{r.ID, r.Prefix, strconv.Itoa(int(r.ExpirationDays)), string(r.Status)})
	}
	printTable([]string{"ID", "PREFIX", "DAYS", "STATUS"}, rows)
}

func lifecycleSet(args []string) {
	pos, opts := splitArgs(args)
	if len(pos) < 2 {
		fatal("lifecycle set requires: <bucket> <days>")
	}
	days, err := strconv.Atoi(pos[1])
	if err != nil {
		fatal("days must be a number")
	}

	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	if prefix, ok := opts["prefix"]; ok {
		err = c.Lifecycle.SetPrefixExpiration(ctx, pos[0], prefix, days)
	} else {
		err = c.Lifecycle.SetExpiration(ctx, pos[0], days)
	}
	if err != nil {
		fatal(err.Error())
	}
	fmt.Printf("Objects in '%s' now expire after %d day(s).\n", pos[0], days)
}

func lifecycleRemove(args []string) {
	pos, opts := splitArgs(args)
	if len(pos) < 1 {
		fatal("lifecycle rm requires a bucket name")
	}
	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	if err := c.Lifecycle.RemoveExpiration(ctx, pos[0], opts["prefix"]); err != nil {
		fatal(err.Error())
	}
	fmt.Printf("Expiration rule removed from '%s'.\n", pos[0])
}

func lifecycleReconcile() {
	if configPath == "" {
		fatal("lifecycle reconcile requires --config")
	}
	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	if err := c.Bootstrap(ctx); err != nil {
		fatal(err.Error())
	}
	fmt.Printf("Reconciled %d expiring prefix(es).\n", len(c.Config.ExpiringPrefixes))
}
