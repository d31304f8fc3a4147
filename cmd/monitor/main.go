// Command monitor is the guardian-amm entrypoint.
package main

import "guardian-amm/internal/cli"

func main() {
	cli.Execute()
}
