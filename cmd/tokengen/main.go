// Package main implements tokengen, a small CLI that mints signed tokens
// for local development and operational testing against the gateway.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/perfect8/shopgw/internal/token"
	"github.com/perfect8/shopgw/internal/trust"
)

func main() {
	subject := flag.String("subject", "", "Token subject (user email)")
	userID := flag.Int64("user-id", 0, "Numeric user id")
	roles := flag.String("roles", trust.RoleCustomer, "Comma-separated role list")
	ttl := flag.Duration("ttl", token.DefaultTTL, "Token lifetime")
	issuer := flag.String("issuer", "", "Issuer claim override")
	secret := flag.String("secret", os.Getenv("SHOPGW_TOKEN_SECRET"),
		"Signing secret (defaults to SHOPGW_TOKEN_SECRET)")
	verify := flag.String("verify", "", "Verify the given token instead of issuing one")
	flag.Parse()

	if *secret == "" {
		fatalf("a signing secret is required: pass -secret or set SHOPGW_TOKEN_SECRET")
	}

	codec, err := token.NewCodec(&token.Config{
		Secret: *secret,
		Issuer: *issuer,
	})
	if err != nil {
		fatalf("codec: %v", err)
	}

	if *verify != "" {
		claims, err := codec.Verify(*verify)
		if err != nil {
			fatalf("verify: %v", err)
		}

		fmt.Printf("subject: %s\n", claims.Subject)
		fmt.Printf("userId:  %d\n", claims.UserID)
		fmt.Printf("roles:   %s\n", strings.Join(claims.Roles, ","))
		fmt.Printf("issuer:  %s\n", claims.Issuer)
		if claims.IssuedAt != nil {
			fmt.Printf("iat:     %s\n", claims.IssuedAt.Format(time.RFC3339))
		}
		if claims.ExpiresAt != nil {
			fmt.Printf("exp:     %s\n", claims.ExpiresAt.Format(time.RFC3339))
		}
		return
	}

	if *subject == "" {
		fatalf("-subject is required")
	}

	tokenString, err := codec.Issue(*subject, *userID, trust.ParseRoleList(*roles), *ttl)
	if err != nil {
		fatalf("issue: %v", err)
	}

	fmt.Println(tokenString)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
