// Command langchef is the LangChef CLI. It signs in to the LangChef auth
// service with the OAuth 2.0 device authorization grant and manages the
// local session.
package main

import "github.com/langchef/langchef/cmd/langchef/cmd"

func main() {
	cmd.Execute()
}
