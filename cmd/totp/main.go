package main

import (
	"fmt"
	"os"
	"time"

	"ttotp/internal/otp"
)

// Debug helper: print the current code for a single provisioning URI.
func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: totp <otpauth-uri>")
		os.Exit(1)
	}

	spec, err := otp.ParseURI(os.Args[1])
	if err != nil {
		fmt.Printf("Error parsing URI: %v\n", err)
		os.Exit(1)
	}

	now := time.Now()
	fmt.Printf("%s (valid for %.0fs)\n", spec.Code(now), spec.Remaining(now))
}
