package alerting

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestBuildMessageHeaders(t *testing.T) {
	date := time.Date(2025, 1, 27, 10, 0, 0, 0, time.UTC)
	msg, err := buildMessage("bot@example.com", "Rate Monitor", []string{"a@example.com", "b@example.com"},
		Subject("CAD-RMB", KindAlert), "<p>rate +1.00%</p>", date)
	if err != nil {
		t.Fatalf("构建邮件失败: %v", err)
	}
	text := string(msg)

	for _, want := range []string{
		"From: \"Rate Monitor\" <bot@example.com>\r\n",
		"To: a@example.com, b@example.com\r\n",
		"Subject: =?utf-8?q?",
		"Date: Mon, 27 Jan 2025 10:00:00 +0000\r\n",
		"MIME-Version: 1.0\r\n",
		"Content-Type: multipart/mixed; boundary=",
		"Content-Type: text/html; charset=UTF-8",
		"Content-Transfer-Encoding: quoted-printable",
		"rate +1.00%",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("邮件缺少 %q:\n%s", want, text)
		}
	}
}

func TestSMTPNotifierRequiresSTARTTLS(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("监听失败: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		_, _ = conn.Write([]byte("220 localhost ESMTP test\r\n"))
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"):
				_, _ = conn.Write([]byte("250-localhost\r\n250 AUTH PLAIN\r\n"))
			case strings.HasPrefix(cmd, "QUIT"):
				_, _ = conn.Write([]byte("221 bye\r\n"))
				return
			default:
				_, _ = conn.Write([]byte("250 ok\r\n"))
			}
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	notifier := NewSMTPNotifier(SMTPOptions{
		Host:       host,
		Port:       port,
		From:       "bot@example.com",
		Password:   "secret",
		Recipients: []string{"a@example.com"},
		Timeout:    time.Second,
	}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = notifier.Notify(ctx, testNotification(KindAlert))
	if err == nil {
		t.Fatal("服务器不支持 STARTTLS 时应报错")
	}
	if !errors.Is(err, ErrSend) {
		t.Fatalf("错误应匹配 ErrSend, 实际 %v", err)
	}
	if !strings.Contains(err.Error(), "STARTTLS") {
		t.Fatalf("错误信息应提及 STARTTLS: %v", err)
	}
}

func TestSMTPNotifierNoRecipients(t *testing.T) {
	notifier := NewSMTPNotifier(SMTPOptions{Host: "127.0.0.1", From: "bot@example.com"}, testLogger())
	if err := notifier.Notify(context.Background(), testNotification(KindAlert)); !errors.Is(err, ErrSend) {
		t.Fatalf("无收件人应返回 SendError, 实际 %v", err)
	}
}

func TestSMTPNotifierDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("监听失败: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	notifier := NewSMTPNotifier(SMTPOptions{
		Host:       "127.0.0.1",
		Port:       addr.Port,
		From:       "bot@example.com",
		Recipients: []string{"a@example.com"},
		Timeout:    time.Second,
	}, testLogger())

	if err := notifier.Notify(context.Background(), testNotification(KindSummary)); !errors.Is(err, ErrSend) {
		t.Fatalf("连接失败应返回 SendError, 实际 %v", err)
	}
}

func TestSendgridBuildMail(t *testing.T) {
	notifier := NewSendgridNotifier(SendgridOptions{
		APIKey:     "SG.test",
		From:       "bot@example.com",
		FromName:   "Rate Monitor",
		Recipients: []string{"a@example.com", "b@example.com"},
	}, testLogger())

	note := testNotification(KindSummary)
	m := notifier.buildMail(note)

	if m.From == nil || m.From.Address != "bot@example.com" || m.From.Name != "Rate Monitor" {
		t.Fatalf("发件人不正确: %#v", m.From)
	}
	if m.Subject != note.Subject {
		t.Fatalf("主题不正确: %s", m.Subject)
	}
	if len(m.Personalizations) != 1 || len(m.Personalizations[0].To) != 2 {
		t.Fatalf("收件人应合并到一个 personalization: %#v", m.Personalizations)
	}
	if len(m.Content) != 1 || m.Content[0].Type != "text/html" || m.Content[0].Value != note.HTMLBody {
		t.Fatalf("正文不正确: %#v", m.Content)
	}
}

func TestSendErrorIs(t *testing.T) {
	err := error(&SendError{Transport: "smtp", Err: errors.New("boom")})
	if !errors.Is(err, ErrSend) {
		t.Fatal("SendError 应匹配 ErrSend")
	}
	if !strings.Contains(err.Error(), "smtp send failed: boom") {
		t.Fatalf("错误信息不正确: %s", err)
	}
}

func testNotification(kind Kind) Notification {
	return Notification{
		Kind:     kind,
		Subject:  Subject("CAD-RMB", kind),
		HTMLBody: "<p>test</p>",
		Sample: RateSample{
			CurrentRate:  decimal.RequireFromString("5.02"),
			Threshold:    decimal.RequireFromString("5.05"),
			Timestamp:    time.Date(2025, 1, 27, 10, 0, 0, 0, time.UTC),
			CurrencyPair: "CAD-RMB",
		},
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
