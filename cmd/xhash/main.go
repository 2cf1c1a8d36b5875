package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"xhash/pkg/buffer"
	"xhash/pkg/config"
	"xhash/pkg/hash"

	"github.com/google/uuid"
)

// setupCloseHandler flushes and closes pool on SIGINT/SIGTERM.
func setupCloseHandler(pool *buffer.BufferPool) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("closehandler invoked")
		if err := pool.Close(); err != nil {
			fmt.Println(err)
		}
		os.Exit(0)
	}()
}

func main() {
	var promptFlag = flag.Bool("c", true, "use prompt?")
	var dbFlag = flag.String("db", "data/xhash.db", "backing file for the hash index")
	flag.Parse()

	pool, err := buffer.New(*dbFlag)
	if err != nil {
		panic(err)
	}
	defer pool.Close()
	setupCloseHandler(pool)

	table, err := hash.New[int32, int32](
		config.DBName, pool,
		hash.Int32Codec{}, hash.Int32Codec{},
		hash.IntComparator, hash.Int32Hasher,
	)
	if err != nil {
		panic(err)
	}

	r := hash.TableRepl(table)
	prompt := config.GetPrompt(*promptFlag)
	r.Run(uuid.New(), prompt, nil, nil)
}
