// Command kvs is the CLI front end: get/set/rm against a running
// kvs-server, plus an interactive repl subcommand.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/kartpop/kvs/internal/client"
	"github.com/kartpop/kvs/internal/config"
	"github.com/kartpop/kvs/internal/kvserr"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load("kvs.yaml")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	c, err := client.Dial(cfg.ServerAddress)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer c.Close()

	switch os.Args[1] {
	case "get":
		if len(os.Args) != 3 {
			usage()
			os.Exit(1)
		}
		runGet(c, os.Args[2])
	case "set":
		if len(os.Args) != 4 {
			usage()
			os.Exit(1)
		}
		runSet(c, os.Args[2], os.Args[3])
	case "rm":
		if len(os.Args) != 3 {
			usage()
			os.Exit(1)
		}
		runRemove(c, os.Args[2])
	case "repl":
		runRepl(c)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kvs get <key> | set <key> <value> | rm <key> | repl")
}

// runGet prints the value on a hit; a miss prints "Key not found" and
// still exits 0; any other failure prints a message and exits
// non-zero.
func runGet(c *client.Client, key string) {
	value, found, err := c.Get(key)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if !found {
		fmt.Println("Key not found")
		return
	}
	fmt.Println(value)
}

func runSet(c *client.Client, key, value string) {
	if err := c.Set(key, value); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runRemove deletes key. An absent key prints "Key not found" and
// exits non-zero, distinguishing it from get's absent-key path, which
// exits 0.
func runRemove(c *client.Client, key string) {
	err := c.Remove(key)
	if err == nil {
		return
	}
	var stringErr kvserr.StringError
	if errors.As(err, &stringErr) && strings.Contains(string(stringErr), "key not found") {
		fmt.Println("Key not found")
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// runRepl is the interactive front end: a readline prompt accepting
// the same three operations, typed as "get <key>", "set <key> <value>",
// "rm <key>".
func runRepl(c *client.Client) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "kvs> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
			return
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "get":
			if len(fields) != 2 {
				fmt.Println("usage: get <key>")
				continue
			}
			value, found, err := c.Get(fields[1])
			if err != nil {
				fmt.Println(err)
			} else if !found {
				fmt.Println("Key not found")
			} else {
				fmt.Println(value)
			}
		case "set":
			if len(fields) != 3 {
				fmt.Println("usage: set <key> <value>")
				continue
			}
			if err := c.Set(fields[1], fields[2]); err != nil {
				fmt.Println(err)
			}
		case "rm":
			if len(fields) != 2 {
				fmt.Println("usage: rm <key>")
				continue
			}
			if err := c.Remove(fields[1]); err != nil {
				var stringErr kvserr.StringError
				if errors.As(err, &stringErr) && strings.Contains(string(stringErr), "key not found") {
					fmt.Println("Key not found")
				} else {
					fmt.Println(err)
				}
			}
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}
