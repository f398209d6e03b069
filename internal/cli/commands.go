package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/tiagocoutinho/qredis/internal/app"
	"github.com/tiagocoutinho/qredis/internal/store"

	"github.com/spf13/cobra"
)

func printJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func printTree(w io.Writer, n app.TreeNode, depth int) {
	label := n.Label
	if !n.IsKey && !n.IsDB {
		label += "/"
	}
	fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), label)
	for _, c := range n.Children {
		printTree(w, c, depth+1)
	}
}

func printItem(w io.Writer, view app.ItemView) {
	fmt.Fprintf(w, "name: %s\ntype: %s\n%s\n", view.Key, view.Type, view.TTLText)
	switch d := view.Display.(type) {
	case string:
		fmt.Fprintln(w, d)
	case map[string]string:
		fields := make([]string, 0, len(d))
		for f := range d {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			fmt.Fprintf(w, "%s: %s\n", f, d[f])
		}
	case []string:
		for _, s := range d {
			fmt.Fprintln(w, s)
		}
	}
}

// valueArgs builds the value of `set` from its positional arguments
func valueArgs(kind string, args []string) (interface{}, error) {
	switch kind {
	case "string":
		if len(args) != 1 {
			return nil, errors.New("string 类型需要一个值")
		}
		return args[0], nil
	case "hash":
		if len(args)%2 != 0 {
			return nil, errors.New("hash 类型需要成对的 field value")
		}
		m := make(map[string]string, len(args)/2)
		for i := 0; i < len(args); i += 2 {
			m[args[i]] = args[i+1]
		}
		return m, nil
	case "list", "set":
		return args, nil
	}
	return nil, fmt.Errorf("不支持的类型: %s", kind)
}

func addKeyCommands(root *cobra.Command, st *state) {
	treeCmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the key tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := result(st.app.RedisRefreshTree(st.config)); err != nil {
				return err
			}
			data, err := result(st.app.RedisKeyTree(st.config))
			if err != nil {
				return err
			}
			printTree(cmd.OutOrStdout(), data.(app.TreeNode), 0)
			return nil
		},
	}

	getCmd := &cobra.Command{
		Use:   "get [key]",
		Short: "Print the type, TTL and value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := result(st.app.RedisGetItem(st.config, args[0]))
			if err != nil {
				return err
			}
			printItem(cmd.OutOrStdout(), data.(app.ItemView))
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set [key] [value...]",
		Short: "Replace the value of a key",
		Long: wrapString(`Replace the value of a key. A string takes one value, a hash takes
field value pairs, a list or set takes its elements.`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetString("type")
			ttl, _ := cmd.Flags().GetInt64("ttl")
			value, err := valueArgs(kind, args[1:])
			if err != nil {
				return err
			}
			if _, err := result(st.app.RedisSetValue(st.config, args[0], kind, value)); err != nil {
				return err
			}
			if ttl >= 0 {
				if _, err := result(st.app.RedisSetTTL(st.config, args[0], ttl)); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "set successfully")
			return nil
		},
	}
	setCmd.Flags().String("type", "string", wrapString("Type of the value (string, hash, list, set)"))
	setCmd.Flags().Int64("ttl", -1, wrapString("TTL in seconds, negative keeps the key persistent"))

	delCmd := &cobra.Command{
		Use:   "del [key...]",
		Short: "Delete keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := result(st.app.RedisDeleteKeys(st.config, args)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted successfully")
			return nil
		},
	}

	renameCmd := &cobra.Command{
		Use:   "rename [old] [new]",
		Short: "Rename a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := result(st.app.RedisRenameKey(st.config, args[0], args[1])); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "renamed successfully")
			return nil
		},
	}

	expireCmd := &cobra.Command{
		Use:   "expire [key] [seconds]",
		Short: "Set the TTL of a key, a negative value makes it persistent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("seconds must be a number: %w", err)
			}
			_, err = result(st.app.RedisSetTTL(st.config, args[0], ttl))
			return err
		},
	}

	persistCmd := &cobra.Command{
		Use:   "persist [key...]",
		Short: "Remove the TTL of keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := result(st.app.RedisPersistKeys(st.config, args))
			return err
		},
	}

	touchCmd := &cobra.Command{
		Use:   "touch [key...]",
		Short: "Update the last access time of keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := result(st.app.RedisTouchKeys(st.config, args))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", data.(map[string]int64)["touched"])
			return nil
		},
	}

	copyCmd := &cobra.Command{
		Use:   "copy [src] [dst]",
		Short: "Copy the value of a key into another key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := result(st.app.RedisCopyKey(st.config, args[0], args[1]))
			return err
		},
	}

	incrCmd := &cobra.Command{
		Use:   "incr [key]",
		Short: "Add a step to a numeric string value, keeping its TTL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			step, _ := cmd.Flags().GetInt64("by")
			data, err := result(st.app.RedisGetItem(st.config, args[0]))
			if err != nil {
				return err
			}
			view := data.(app.ItemView)
			text, ok := view.Value.(string)
			if !ok {
				return fmt.Errorf("%s 不是 string 类型", args[0])
			}
			next, ok := store.IncrBy(text, step)
			if !ok {
				return fmt.Errorf("%q 不是数字", text)
			}
			original := app.ItemInput{Key: view.Key, Type: view.Type, TTL: view.TTL, Value: text}
			edited := original
			edited.Value = next
			if _, err := result(st.app.RedisApplyEdit(st.config, original, edited)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), next)
			return nil
		},
	}
	incrCmd.Flags().Int64("by", 1, wrapString("Step to add, may be negative"))

	scanCmd := &cobra.Command{
		Use:   "scan [pattern]",
		Short: "Print one SCAN page with the type and TTL of each key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := "*"
			if len(args) == 1 {
				pattern = args[0]
			}
			cursor, _ := cmd.Flags().GetUint64("cursor")
			count, _ := cmd.Flags().GetInt64("count")
			data, err := result(st.app.RedisScanKeys(st.config, pattern, cursor, count))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
	scanCmd.Flags().Uint64("cursor", 0, wrapString("Cursor returned by the previous page"))
	scanCmd.Flags().Int64("count", 100, wrapString("COUNT hint of the SCAN command"))

	exportCmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export keys to csv, json, md or xlsx",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			pattern, _ := cmd.Flags().GetString("pattern")
			if format == "" {
				if i := strings.LastIndex(args[0], "."); i >= 0 {
					format = args[0][i+1:]
				}
			}
			data, err := result(st.app.RedisExportKeys(st.config, pattern, args[0], format))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d keys\n", data.(map[string]int)["keys"])
			return nil
		},
	}
	exportCmd.Flags().String("format", "", wrapString("Output format, taken from the file extension when empty"))
	exportCmd.Flags().String("pattern", "*", wrapString("Glob pattern of the exported keys"))

	root.AddCommand(treeCmd, getCmd, setCmd, delCmd, renameCmd, expireCmd,
		persistCmd, touchCmd, copyCmd, incrCmd, scanCmd, exportCmd)
}

func addServerCommands(root *cobra.Command, st *state) {
	connectCmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect and print the connection description",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := result(st.app.RedisConnect(st.config))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), data.(store.Description).Long)
			return nil
		},
	}

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Print the server INFO fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := result(st.app.RedisGetServerInfo(st.config))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}

	dbsCmd := &cobra.Command{
		Use:   "dbs",
		Short: "Print the key count of every database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := result(st.app.RedisGetDatabases(st.config))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}

	flushCmd := &cobra.Command{
		Use:   "flush",
		Short: "Delete every key of the selected database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return errors.New("refusing to flush without --yes")
			}
			_, err := result(st.app.RedisFlushDB(st.config))
			return err
		},
	}
	flushCmd.Flags().Bool("yes", false, wrapString("Confirm the flush"))

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or change the server configuration",
	}
	configGetCmd := &cobra.Command{
		Use:   "get [pattern]",
		Short: "Print the parameters matching pattern (default *)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := "*"
			if len(args) == 1 {
				pattern = args[0]
			}
			data, err := result(st.app.RedisGetConfig(st.config, pattern))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
	configSetCmd := &cobra.Command{
		Use:   "set <parameter> <value>",
		Short: "Change a server parameter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := st.app.RedisSetConfig(st.config, args[0], args[1])
			if !res.Success {
				if cur, ok := res.Data.(map[string]string); ok && cur[args[0]] != "" {
					return fmt.Errorf("%s (current value: %s)", res.Message, cur[args[0]])
				}
				return errors.New(res.Message)
			}
			return nil
		},
	}
	configCmd.AddCommand(configGetCmd, configSetCmd)

	clientsCmd := &cobra.Command{
		Use:   "clients",
		Short: "Print the connections of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := result(st.app.RedisClientList(st.config))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}

	root.AddCommand(connectCmd, infoCmd, dbsCmd, flushCmd, configCmd, clientsCmd)
}
