package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
)

type Sender struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func NewSender(host, port, username, password, from string) *Sender {
	return &Sender{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
	}
}

const keyRequestTemplate = `
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #ddd; border-radius: 5px; }
        .header { background-color: #6200ee; color: white; padding: 10px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { padding: 20px; }
        .footer { margin-top: 20px; font-size: 0.8em; color: #777; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Sealchat</h1>
        </div>
        <div class="content">
            <p>Hi,</p>
            <p><strong>{{.Requester}}</strong> is waiting to be admitted to the room <strong>{{.Room}}</strong>,
            but nobody who holds the room key is online right now.</p>
            <p>Join the room to share the key and let them in.</p>
        </div>
        <div class="footer">
            <p>You receive this because you are the admin contact of {{.Room}}.</p>
        </div>
    </div>
</body>
</html>
`

// NotifyKeyRequest mails the room's admin contact that someone is queued
// for the room key with no member online to relay it.
func (s *Sender) NotifyKeyRequest(to, room, requester string) error {
	t, err := template.New("keyrequest").Parse(keyRequestTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	var body bytes.Buffer
	if err := t.Execute(&body, map[string]string{"Requester": requester, "Room": room}); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	// Email headers
	headers := make(map[string]string)
	headers["From"] = s.From
	headers["To"] = to
	headers["Subject"] = fmt.Sprintf("%s is waiting to join %s", requester, room)
	headers["MIME-Version"] = "1.0"
	headers["Content-Type"] = "text/html; charset=\"UTF-8\""

	message := ""
	for k, v := range headers {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	message += "\r\n" + body.String()

	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	addr := fmt.Sprintf("%s:%s", s.Host, s.Port)

	// If no host is configured, just log it (for development/demo purposes)
	if s.Host == "" {
		fmt.Println("==================================================")
		fmt.Printf("MOCK EMAIL TO: %s\n", to)
		fmt.Printf("SUBJECT: %s\n", headers["Subject"])
		fmt.Println(body.String())
		fmt.Println("==================================================")
		return nil
	}

	return smtp.SendMail(addr, auth, s.From, []string{to}, []byte(message))
}
