package main

import (
	"context"
	"os"

	"github.com/dmitrijs2005/tokenkeeper/internal/admin"
)

func main() {
	os.Exit(admin.Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
