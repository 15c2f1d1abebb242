// Package audio управляет аудиоресурсами устройства на время жизни звонков.
//
// KeepAlive удерживает wake lock, аудиофокус и режим аудиоподсистемы, пока
// существует хотя бы один звонок, и проигрывает гудки вызова для исходящих.
// RouteController переключает вывод звука между разговорным динамиком,
// громкой связью, проводной и bluetooth гарнитурой.
//
// Платформа скрыта за интерфейсами AudioManager, PowerManager и TonePlayer.
// Набор доступных вызовов платформы определяется один раз через
// DetectCapabilities, после чего недоступные шаги пропускаются без попытки
// вызова и возвращают ErrUnsupported.
package audio
