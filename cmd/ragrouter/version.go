package main

import (
	"context"
	"fmt"

	"github.com/a-h/ragrouter"
)

type VersionCommand struct {
}

func (c VersionCommand) Run(ctx context.Context) (err error) {
	fmt.Println(ragrouter.Version)
	return nil
}
