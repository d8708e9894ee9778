package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/burstsort/internal/config"
	"github.com/John-Robertt/burstsort/internal/infra/journal"
)

func historyCommand(stdout, stderr io.Writer, code *int) *cobra.Command {
	var burstsRoot, burst, runID string
	cmd := &cobra.Command{
		Use:   "history [path]",
		Short: "查询 journal 中的落地记录（按 burst 目录或 run_id）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := config.CLIArgs{BurstsRoot: burstsRoot}
			if len(args) > 0 {
				cli.Path = args[0]
			}
			*code = historyMain(cli, burst, runID, stdout, stderr)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&burstsRoot, "bursts-root", "", "burst 目录的根（默认 <path>/bursts）")
	f.StringVar(&burst, "burst", "", `burst 目录名，例如 "2015-06-11 14-22-05"`)
	f.StringVar(&runID, "run", "", "run_id（见 report.json）")
	cmd.MarkFlagsOneRequired("burst", "run")
	cmd.MarkFlagsMutuallyExclusive("burst", "run")
	return cmd
}

// historyMain 把查询结果以 JSON 数组写到 stdout；journal 不存在时退出码为 1。
func historyMain(cli config.CLIArgs, burst, runID string, stdout, stderr io.Writer) int {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	st, err := journal.OpenExisting(eff.BurstsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(stderr, "没有 journal：%s（只有 --apply 且 journal 开启时才会记录）\n", journal.Path(eff.BurstsRoot))
			return 1
		}
		fmt.Fprintf(stderr, "打开 journal 失败：%v\n", err)
		return 1
	}
	defer st.Close()

	var entries []journal.Entry
	if burst != "" {
		entries, err = st.ByBurst(burst)
	} else {
		entries, err = st.ByRun(runID)
	}
	if err != nil {
		fmt.Fprintf(stderr, "查询 journal 失败：%v\n", err)
		return 1
	}
	if entries == nil {
		entries = []journal.Entry{}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		fmt.Fprintf(stderr, "输出失败：%v\n", err)
		return 1
	}
	return 0
}
