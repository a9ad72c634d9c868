package data

import (
	_ "embed"
)

//go:embed seed/components.json
var SeedComponents []byte

//go:embed initdb/mariadb/001-privileges.sql
var InitdbMariaDBPrivileges string
