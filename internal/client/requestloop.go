package client

import (
	"errors"
	"net"
	"time"

	"github.com/iLukSbr/bankudp/internal/config"
	"github.com/iLukSbr/bankudp/internal/protocol"
)

// ErrRetriesExhausted é retornado quando config.MaxRetries tentativas
// não obtêm ACK_REQ/ERROR_REQ do par.
var ErrRetriesExhausted = errors.New("client: esgotadas as tentativas de envio do REQ")

// ErrRejected é retornado quando o servidor responde ERROR_REQ —
// origem não cadastrada.
var ErrRejected = errors.New("client: servidor rejeitou a requisição (origem não cadastrada)")

// Result descreve o desfecho de uma requisição bem-sucedida.
type Result struct {
	Seqn    uint32
	DestIP  uint32
	Value   uint32
	Balance uint32
}

// Loop mantém o contador de sequência local e envia requisições
// numeradas pelo socket já conectado ao servidor. Cada chamada a
// Request usa até config.MaxRetries tentativas de config.RequestTimeout
// cada. Não é seguro para uso concorrente — a sequência local é de
// responsabilidade de uma única goroutine, a do laço de requisição.
type Loop struct {
	conn *net.UDPConn
	seq  uint32
}

// NewLoop cria um Loop vinculado a um socket já descoberto (ver Discover).
func NewLoop(conn *net.UDPConn) *Loop {
	return &Loop{conn: conn}
}

// Request envia uma transferência (ou consulta de saldo, se value==0)
// para destIP, avançando a sequência local a cada chamada — mesmo em
// caso de falha, já que o servidor também avança seu last_req ao
// processar o REQ originalmente enviado.
func (l *Loop) Request(destIP uint32, value uint32) (Result, error) {
	l.seq++
	seq := l.seq
	payload := protocol.EncodeReq(seq, destIP, value)

	for attempt := 1; attempt <= config.MaxRetries; attempt++ {
		if _, err := l.conn.Write(payload); err != nil {
			return Result{}, err
		}
		_ = l.conn.SetReadDeadline(time.Now().Add(config.RequestTimeout))

		for {
			buf := make([]byte, config.RecvBufferSize)
			n, err := l.conn.Read(buf)
			if err != nil {
				// Deadline estourada: parte para a próxima tentativa.
				break
			}
			p, err := protocol.Decode(buf[:n])
			if err != nil {
				// Datagrama malformado do par conectado: ignora e
				// continua aguardando dentro do mesmo deadline.
				continue
			}
			switch p.Type {
			case protocol.AckReq:
				if p.Seqn != seq {
					// ACK de uma requisição anterior reentregue — não
					// é a resposta desta chamada; continua aguardando
					// dentro do mesmo deadline.
					continue
				}
				return Result{Seqn: p.Seqn, DestIP: p.DestIP, Value: p.Value, Balance: p.Balance}, nil
			case protocol.ErrorReq:
				return Result{}, ErrRejected
			default:
				continue
			}
		}
	}
	return Result{}, ErrRetriesExhausted
}
