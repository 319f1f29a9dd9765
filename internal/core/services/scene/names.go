package scene

import "hash/fnv"

// deviceNames is the fixed pool of default device labels. A device whose
// peer does not supply a name gets pool[hash(guid) % len(pool)], which is
// stable for the lifetime of the process and across processes.
var deviceNames = [80]string{
	"Bear", "Boar", "Buck", "Bull", "Calf", "Cavy", "Colt", "Cony", "Coon",
	"Dauw", "Deer", "Dieb", "Douc", "Dzho", "Euro", "Eyra", "Fawn", "Foal",
	"Gaur", "Gilt", "Goat", "Guib", "Gyal", "Hare", "Hart", "Hind", "Hogg",
	"Ibex", "Joey", "Jomo", "Kine", "Kudu", "Lamb", "Lion", "Maki", "Mara",
	"Mare", "Mico", "Mink", "Moco", "Mohr", "Moke", "Mole", "Mona", "Mule",
	"Musk", "Napu", "Neat", "Nowt", "Oont", "Orca", "Oryx", "Oxen", "Paca",
	"Paco", "Pard", "Peba", "Pika", "Pudu", "Puma", "Quey", "Roan", "Runt",
	"Rusa", "Saki", "Seal", "Skug", "Sore", "Tait", "Tegg", "Titi", "Unau",
	"Urus", "Urva", "Vari", "Vole", "Wolf", "Zati", "Zebu", "Zobo",
}

// DefaultName returns the pool name for a peer-supplied guid.
func DefaultName(guid string) string {
	h := fnv.New32a()
	h.Write([]byte(guid))
	return deviceNames[h.Sum32()%uint32(len(deviceNames))]
}
