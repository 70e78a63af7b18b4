/*
Package cli provides helpers shared by the broker command.

Output Formatting:

Commands that print records support text, JSON and CSV output. Records
that implement Table render as aligned columns in text mode and as rows in
CSV mode:

	format, err := cli.ParseFormat(flagValue)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, rows)

Errors:

ConfigError and CommandError carry the failing field or command. ExitCode
maps them to the process exit status.

Signal Handling:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
*/
package cli
