// Command kvs-client sends one command to a kvs-server and prints its
// response, per spec.md §6.3: subcommands set/get/rm, flag --addr.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/aleksandarhr/kvs/internal/client"
	"github.com/aleksandarhr/kvs/internal/kvserror"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	sub := os.Args[1]
	fs := flag.NewFlagSet(sub, flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:4000", "server address")
	_ = fs.Parse(os.Args[2:])

	c := client.New(*addr)
	args := fs.Args()

	switch sub {
	case "set":
		if len(args) != 2 {
			usage()
			os.Exit(1)
		}
		if err := c.Set(args[0], args[1]); err != nil {
			fail(err)
		}
	case "get":
		if len(args) != 1 {
			usage()
			os.Exit(1)
		}
		value, ok, err := c.Get(args[0])
		if err != nil {
			fail(err)
		}
		if ok {
			fmt.Println(value)
		} else {
			fmt.Println("Key not found")
		}
	case "rm":
		if len(args) != 1 {
			usage()
			os.Exit(1)
		}
		if err := c.Remove(args[0]); err != nil {
			if errors.Is(err, kvserror.ErrKeyNotFound) {
				fmt.Println("Key not found")
			} else {
				fmt.Fprintln(os.Stderr, err)
			}
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kvs-client <set|get|rm> [--addr IP:PORT] <KEY VALUE | KEY | KEY>")
}
