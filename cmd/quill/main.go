package main

import "github.com/quillnotes/quill/cmd/quill/cmd"

func main() {
	cmd.Execute()
}
