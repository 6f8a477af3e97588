package main

import "torrent-monitor/cmd"

func main() {
	cmd.Execute()
}
