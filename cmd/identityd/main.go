// @title                       UNZA Counseling Identity API
// @version                     1.0
// @description                 Federated login and stateless session tokens for the counseling platform.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import "github.com/unza/counseling-identity/cmd/identityd/cmd"

func main() {
	cmd.Execute()
}
