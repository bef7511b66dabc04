package main

import (
	"math/rand"
	"time"

	"github.com/compoundpi/compoundpi/cmd"
)

func main() {
	rand.Seed(time.Now().UnixNano())

	cmd.Execute()
}
