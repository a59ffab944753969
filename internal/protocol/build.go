package protocol

import "github.com/dkeye/Rendezvous/internal/domain"

// Client to server.

func JoinRoom(id domain.Identity, code domain.RoomCode) Message {
	return Message{Type: TypeJoinRoom, Identity: id, RoomCode: code}
}

func CallUser(target domain.Identity, offer SDP) Message {
	return Message{Type: TypeCallUser, TargetIdentity: target, Offer: &offer}
}

func AnswerCall(target domain.Identity, answer SDP) Message {
	return Message{Type: TypeCallAnswered, TargetIdentity: target, Answer: &answer}
}

func SendCandidate(code domain.RoomCode, c Candidate) Message {
	return Message{Type: TypeIceCandidate, RoomCode: code, Candidate: &c}
}

func LeaveRoom(code domain.RoomCode) Message {
	return Message{Type: TypeLeaveRoom, RoomCode: code}
}

func Ping() Message { return Message{Type: TypePing} }

// Server to client.

func JoinedRoom(code domain.RoomCode) Message {
	return Message{Type: TypeJoinedRoom, RoomCode: code}
}

func UserJoined(id domain.Identity) Message {
	return Message{Type: TypeUserJoined, Identity: id}
}

func IncomingCall(from domain.Identity, offer SDP) Message {
	return Message{Type: TypeIncomingCall, FromIdentity: from, Offer: &offer}
}

func CallAnswered(from domain.Identity, answer SDP) Message {
	return Message{Type: TypeCallAnswered, FromIdentity: from, Answer: &answer}
}

func RelayCandidate(from domain.Identity, c Candidate) Message {
	return Message{Type: TypeIceCandidate, FromIdentity: from, Candidate: &c}
}

func UserLeft(id domain.Identity) Message {
	return Message{Type: TypeUserLeft, Identity: id}
}

func LeftRoom(code domain.RoomCode) Message {
	return Message{Type: TypeLeftRoom, RoomCode: code}
}

func Pong() Message { return Message{Type: TypePong} }

func Error(code ErrorCode, msg string) Message {
	return Message{Type: TypeError, Code: code, Message: msg}
}

// RoutingMiss tells a sender that target has no live endpoint.
func RoutingMiss(target domain.Identity) Message {
	return Message{
		Type:           TypeError,
		Code:           CodeRoutingMiss,
		Message:        "target is not connected",
		TargetIdentity: target,
	}
}
