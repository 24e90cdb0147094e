package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mgenware/j9/v3"
	"github.com/mgenware/ku-natives/inspect"
	flag "github.com/spf13/pflag"
)

func main() {
	minOSPtr := flag.String("minos", "11.0", "Expected deployment target for the check action.")
	archsPtr := flag.String("archs", "arm64,x86_64", "Expected archs for the check action.")
	helpPtr := flag.BoolP("help", "h", false, "Show usage information.")
	flag.Parse()
	args := flag.Args()

	if *helpPtr || len(args) < 2 {
		printUsage()
		return
	}

	action := args[0]
	input := args[1]
	if _, err := os.Stat(input); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	t := j9.NewTunnel(j9.NewLocalNode(), j9.NewConsoleLogger())
	insp := inspect.NewTunnelInspector(t)

	var err error
	switch action {
	case "archs":
		var archs []string
		if archs, err = insp.Archs(input); err == nil {
			fmt.Println(strings.Join(archs, " "))
		}
	case "minos":
		var v string
		if v, err = insp.MinOS(input); err == nil {
			fmt.Println(v)
		}
	case "members":
		var members []string
		if members, err = insp.Members(input); err == nil {
			for _, m := range members {
				fmt.Println(m)
			}
		}
	case "check":
		err = check(insp, input, *archsPtr, *minOSPtr)
		if err == nil {
			fmt.Println("OK")
		}
	default:
		fmt.Println("Unknown action")
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func check(insp inspect.Inspector, input, archs, minOS string) error {
	if strings.HasSuffix(input, ".a") {
		if err := inspect.CheckMembers(insp, input); err != nil {
			return err
		}
	}
	if archs != "" {
		if err := inspect.CheckUniversal(insp, input, strings.Split(archs, ",")); err != nil {
			return err
		}
	}
	if minOS != "" {
		return inspect.CheckMinOS(insp, input, minOS)
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage: kbu <action> [options] <input>")
	fmt.Println("Actions:")
	fmt.Println("  archs      List archs of the input file (lipo)")
	fmt.Println("  minos      Print the deployment target of the input file (otool)")
	fmt.Println("  members    List object files of a static archive (ar)")
	fmt.Println("  check      Verify archs, deployment target and members")
	fmt.Println("Options:")
	fmt.Println("  --archs    Comma separated archs expected by check, empty to skip")
	fmt.Println("  --minos    Deployment target expected by check, empty to skip")
}
