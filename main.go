package main

import "claudechat/cmd"

func main() {
	cmd.Execute()
}
