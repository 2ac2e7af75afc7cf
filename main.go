package main

import (
	"github.com/dandi-archive/s3logreduce/cli"
)

func main() {
	cli.Run()
}
