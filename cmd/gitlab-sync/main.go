package main

import "github.com/syncforge/gitlab-sync-client/cmd/gitlab-sync/cmd"

func main() {
	cmd.Execute()
}
