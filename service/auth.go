package service

import (
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/wepaintai/wepaintai-sub000/models"
)

// Sessions are joinable by link: anyone may mint a guest identity and
// draw. The token exists so the participant keeps a stable id and
// cursor color across reconnects, not as an access gate.

func (s *Service) CreateGuest(name string, color string) (models.Participant, string, error) {
	guestUUID, err := uuid.NewV7()
	if err != nil {
		return models.Participant{}, "", err
	}

	guest := models.Participant{
		Id:    guestUUID.String(),
		Name:  name,
		Color: color,
		Guest: true,
	}

	token, err := s.createJWT(guest)
	if err != nil {
		return models.Participant{}, "", err
	}
	return guest, token, nil
}

func (s *Service) createJWT(participant models.Participant) (string, error) {
	claims := jwt.MapClaims{
		"id":    participant.Id,
		"name":  participant.Name,
		"color": participant.Color,
		"guest": participant.Guest,
		"exp":   time.Now().Add(24 * time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.JWTSecret)
	if err != nil {
		return "", err
	}

	return signedToken, nil
}

func (s *Service) AuthenticateToken(tokenString string) (models.Participant, error) {
	if len(tokenString) == 0 {
		return models.Participant{}, errors.New("token not provided")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return s.JWTSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Participant{}, err
	}

	if !token.Valid {
		return models.Participant{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Participant{}, errors.New("invalid token claims")
	}

	id, ok := claims["id"].(string)
	if !ok {
		return models.Participant{}, errors.New("missing id claim")
	}

	name, ok := claims["name"].(string)
	if !ok {
		return models.Participant{}, errors.New("missing name claim")
	}

	color, _ := claims["color"].(string)
	guest, _ := claims["guest"].(bool)

	return models.Participant{Id: id, Name: name, Color: color, Guest: guest}, nil
}
