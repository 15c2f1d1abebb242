// Package callkit координирует сессии звонков между приложением и
// системной телефонией.
//
// Coordinator принимает команды приложения (Register, Answer, Hold,
// Disconnect, SetAudioRoute) и обратные вызовы ОС (OnConnectionCreated,
// OnAnswer, OnHold, OnUnhold, OnDisconnect), ведет реестр соединений,
// поддерживает инвариант единственной активной сессии и управляет
// аудиоресурсами через пакет audio.
//
// Внешние зависимости передаются конструктору New: уведомления, шина
// событий, регистрация в телефонии и платформа аудио.
package callkit
