package main

import "github.com/candlelight-ml/candela/cmd"

func main() {
	cmd.Execute()
}
