package query

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sourcechat/backend/internal/domain/chat"
)

// RunInteractive 交互式问答循环
// 空行忽略；exit 退出；clear 清空会话历史；其余输入作为问题回答
func (s *Service) RunInteractive(ctx context.Context, in io.Reader, out io.Writer, maxResults int) error {
	session := chat.NewSession()
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprintln(out, "Ask a question about the indexed sources. Type 'exit' to quit, 'clear' to reset the conversation.")

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case strings.EqualFold(input, "exit"):
			return nil
		case strings.EqualFold(input, "clear"):
			session.Clear()
			fmt.Fprintln(out, "Conversation history cleared.")
		default:
			answer, err := s.Ask(ctx, input, maxResults, session)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			fmt.Fprintln(out, answer)
		}
	}
}
