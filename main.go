package main

import "github.com/shouni/go-tiktok-exact/cmd"

func main() {
	cmd.Execute()
}
