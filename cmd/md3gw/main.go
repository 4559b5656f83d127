// md3gw runs an MD3 substation gateway: MD3 outstations on TCP, UDP, QUIC or
// serial lines, fed by Modbus and simulator ports.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
