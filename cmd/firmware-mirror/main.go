package main

import "github.com/oshokin/firmware-mirror/cmd/firmware-mirror/cmd"

func main() {
	cmd.Execute()
}
