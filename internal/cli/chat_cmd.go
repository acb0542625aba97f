package cli

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pmsystem/pmdash/internal/dashboard/chatlog"
	"github.com/pmsystem/pmdash/internal/projects/domain"
)

func (r *runner) sendCmd() *cobra.Command {
	var attachment, attachmentType string

	cmd := &cobra.Command{
		Use:   "send <text>",
		Short: "Post a message to the project chat",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.open(cmd, nil); err != nil {
				return err
			}
			text := strings.Join(args, " ")

			var msg domain.Message
			var err error
			if attachment != "" {
				// re-sends an upload whose message failed earlier
				att := domain.Attachment{URL: attachment, Type: attachmentType}
				if att.Type == "" {
					att.Type = mime.TypeByExtension(filepath.Ext(attachment))
				}
				msg, err = r.app.Mutations.SendAttachment(cmd.Context(), text, att)
			} else {
				msg, err = r.app.Mutations.SendMessage(cmd.Context(), text)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent at %s\n", msg.Timestamp.Local().Format("15:04:05"))
			return nil
		},
	}
	cmd.Flags().StringVar(&attachment, "attachment", "", "url of an already uploaded file")
	cmd.Flags().StringVar(&attachmentType, "attachment-type", "", "content type of --attachment")
	return cmd
}

func (r *runner) attachCmd() *cobra.Command {
	var text string

	cmd := &cobra.Command{
		Use:   "attach <file>",
		Short: "Upload a file and post it to the project chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			if err := r.open(cmd, nil); err != nil {
				return err
			}

			msg, err := r.app.Mutations.UploadAttachment(cmd.Context(), text, chatlog.Upload{
				Filename:    filepath.Base(args[0]),
				ContentType: mime.TypeByExtension(filepath.Ext(args[0])),
				Body:        f,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s\n", msg.Attachment.URL)
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "message text to go with the file")
	return cmd
}

func (r *runner) todosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "todos",
		Short: "Show the administrator task list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := r.app.Mutations.ListTodos(cmd.Context())
			if err != nil {
				return err
			}
			renderTodos(cmd.OutOrStdout(), items)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <text>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			todo, err := r.app.Mutations.AddTodo(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", todo.ID)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.app.Mutations.DeleteTodo(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Deleted")
			return nil
		},
	})
	return cmd
}
