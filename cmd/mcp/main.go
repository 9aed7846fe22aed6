package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/AnishMulay/capfs/internal/config"
	"github.com/AnishMulay/capfs/internal/file_service"
	"github.com/AnishMulay/capfs/servers/capfs"
)

// maxReadBytes bounds a single fs_read result.
const maxReadBytes = 1 << 20

type tools struct {
	stack *capfs.Stack
}

func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

func addTools(s *server.MCPServer, t *tools) {
	s.AddTool(mcp.NewTool("fs_stat",
		mcp.WithDescription("Report whether a path is a file or directory, its length, and its capsule"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path")),
	), t.handleStat)

	s.AddTool(mcp.NewTool("fs_list",
		mcp.WithDescription("List the entries of a directory"),
		mcp.WithString("path", mcp.Description("Absolute directory path, default /")),
	), t.handleList)

	s.AddTool(mcp.NewTool("fs_read",
		mcp.WithDescription("Read a file as text"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute file path")),
		mcp.WithNumber("offset", mcp.Description("Byte offset to start at")),
		mcp.WithNumber("length", mcp.Description("Maximum number of bytes to return")),
	), t.handleRead)

	s.AddTool(mcp.NewTool("fs_write",
		mcp.WithDescription("Write text to a file, creating it if needed"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute file path")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Text to write")),
		mcp.WithBoolean("append", mcp.Description("Append instead of replacing the contents")),
	), t.handleWrite)

	s.AddTool(mcp.NewTool("fs_mkdir",
		mcp.WithDescription("Create a directory"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute directory path")),
	), t.handleMkdir)

	s.AddTool(mcp.NewTool("fs_remove",
		mcp.WithDescription("Remove a file or an empty directory"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path")),
	), t.handleRemove)
}

func (t *tools) handleStat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := request.RequireString("path")
	if err != nil {
		return toolError(err)
	}
	attr, err := t.stack.Posix.Stat(ctx, p)
	if err != nil {
		return toolError(err)
	}
	kind := "file"
	if attr.IsDir {
		kind = "directory"
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s, %d bytes, capsule %s", p, kind, attr.Length, attr.Target)), nil
}

func (t *tools) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir := request.GetString("path", "/")
	fh, err := t.stack.Posix.OpenDir(ctx, dir)
	if err != nil {
		return toolError(err)
	}
	defer t.stack.Posix.ReleaseDir(fh)

	entries, err := t.stack.Posix.ReadDir(ctx, fh)
	if err != nil {
		return toolError(err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d entries)\n", dir, len(entries))
	for _, e := range entries {
		if e.IsDir {
			fmt.Fprintf(&b, "- %s/\n", e.Name)
		} else {
			fmt.Fprintf(&b, "- %s\n", e.Name)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (t *tools) handleRead(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := request.RequireString("path")
	if err != nil {
		return toolError(err)
	}
	offset := request.GetInt("offset", 0)
	length := request.GetInt("length", maxReadBytes)
	if offset < 0 || length < 0 {
		return mcp.NewToolResultError("offset and length must not be negative"), nil
	}

	fh, err := t.stack.Posix.Open(ctx, p)
	if err != nil {
		return toolError(err)
	}
	defer t.stack.Posix.Release(fh)

	buf := make([]byte, min(length, maxReadBytes))
	n, err := t.stack.Posix.Read(ctx, fh, buf, uint64(offset))
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(string(buf[:n])), nil
}

func (t *tools) handleWrite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := request.RequireString("path")
	if err != nil {
		return toolError(err)
	}
	content, err := request.RequireString("content")
	if err != nil {
		return toolError(err)
	}
	appendMode := request.GetBool("append", false)

	fh, err := t.stack.Posix.Open(ctx, p)
	if errors.Is(err, file_service.ErrNotFound) {
		fh, err = t.stack.Posix.Create(ctx, p)
	}
	if err != nil {
		return toolError(err)
	}
	defer t.stack.Posix.Release(fh)

	var offset uint64
	if appendMode {
		attr, err := t.stack.Posix.Stat(ctx, p)
		if err != nil {
			return toolError(err)
		}
		offset = attr.Length
	} else if err := t.stack.Posix.TruncateHandle(ctx, fh, 0); err != nil {
		return toolError(err)
	}

	n, err := t.stack.Posix.Write(ctx, fh, []byte(content), offset)
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("wrote %d bytes to %s at offset %d", n, p, offset)), nil
}

func (t *tools) handleMkdir(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := request.RequireString("path")
	if err != nil {
		return toolError(err)
	}
	if err := t.stack.Posix.Mkdir(ctx, p); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText("created " + path.Clean(p)), nil
}

func (t *tools) handleRemove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := request.RequireString("path")
	if err != nil {
		return toolError(err)
	}
	attr, err := t.stack.Posix.Stat(ctx, p)
	if err != nil {
		return toolError(err)
	}
	if attr.IsDir {
		err = t.stack.Posix.Rmdir(ctx, p)
	} else {
		err = t.stack.Posix.Unlink(ctx, p)
	}
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText("removed " + path.Clean(p)), nil
}

func main() {
	configPath := flag.String("config", "capfs.yaml", "path to the capfs config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	// stdout carries the protocol, so logs must not go to the console.
	cfg.Log.Backend = config.LogBackendFile

	stack, err := capfs.OpenStack(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open capfs: %v\n", err)
		os.Exit(2)
	}
	defer stack.Close()

	s := server.NewMCPServer(
		"capfs",
		"1.0.0",
		server.WithToolCapabilities(false),
	)
	addTools(s, &tools{stack: stack})

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
	}
}
