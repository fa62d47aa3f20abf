package main

import (
	"fmt"
	"os"

	"groupchat/internal/utils/log"

	"github.com/awnumar/memguard"
)

func main() {
	defer memguard.Purge()

	err := rootCmd.Execute()
	log.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		memguard.SafeExit(1)
	}
}
