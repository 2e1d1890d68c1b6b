package app

import "strings"

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandReport は監査を1回実行してレポートを書き出すことを示す。
	CommandReport Command = "report"
	// CommandJoin はエラーレポートとオーナー情報ファイルを結合することを示す。
	CommandJoin Command = "join"
	// CommandGroup はオーナー情報ファイルをフィードURLでグループ化することを示す。
	CommandGroup Command = "group"
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は定期レポートのワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	"report":      CommandReport,
	"join":        CommandJoin,
	"group":       CommandGroup,
	"serve":       CommandServe,
	"worker":      CommandWorker,
	"migrate":     CommandMigrate,
	"healthcheck": CommandHealthcheck,
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandReportを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandReport
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandReport
}

// commandArgs はサブコマンド名を除いたフラグ引数を返す。
// サブコマンドが省略された場合（例: feedaudit -days 30）は引数全体を返す。
func commandArgs(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	if _, ok := commands[args[0]]; ok {
		return args[1:]
	}
	if strings.HasPrefix(args[0], "-") {
		return args
	}
	return args[1:]
}
