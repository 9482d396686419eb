package nn

import (
	"math"
	"strconv"
	"strings"
)

const (
	COCOPerson       = 0
	COCOBicycle      = 1
	COCOCar          = 2
	COCOMotorcycle   = 3
	COCOAirplane     = 4
	COCOBus          = 5
	COCOTrain        = 6
	COCOTruck        = 7
	COCOBoat         = 8
	COCOTrafficLight = 9
	COCOFireHydrant  = 10
	COCOStopSign     = 11
	COCOParkingMeter = 12
	COCOBench        = 13
	COCOBird         = 14
	COCOCat          = 15
	COCODog          = 16
)

// COCO classes
var COCOClasses = []string{
	"person",
	"bicycle",
	"car",
	"motorcycle",
	"airplane",
	"bus",
	"train",
	"truck",
	"boat",
	"traffic light",
	"fire hydrant",
	"stop sign",
	"parking meter",
	"bench",
	"bird",
	"cat",
	"dog",
	"horse",
	"sheep",
	"cow",
	"elephant",
	"bear",
	"zebra",
	"giraffe",
	"backpack",
	"umbrella",
	"handbag",
	"tie",
	"suitcase",
	"frisbee",
	"skis",
	"snowboard",
	"sports ball",
	"kite",
	"baseball bat",
	"baseball glove",
	"skateboard",
	"surfboard",
	"tennis racket",
	"bottle",
	"wine glass",
	"cup",
	"fork",
	"knife",
	"spoon",
	"bowl",
	"banana",
	"apple",
	"sandwich",
	"orange",
	"broccoli",
	"carrot",
	"hot dog",
	"pizza",
	"donut",
	"cake",
	"chair",
	"couch",
	"potted plant",
	"bed",
	"dining table",
	"toilet",
	"tv",
	"laptop",
	"mouse",
	"remote",
	"keyboard",
	"cell phone",
	"microwave",
	"oven",
	"toaster",
	"sink",
	"refrigerator",
	"book",
	"clock",
	"vase",
	"scissors",
	"teddy bear",
	"hair drier",
	"toothbrush",
}

// ClassLabel returns the capitalised COCO name of the class, or "Class <id>" if the id is
// outside the vocabulary.
func ClassLabel(class int) string {
	if class < 0 || class >= len(COCOClasses) {
		return "Class " + strconv.Itoa(class)
	}
	name := COCOClasses[class]
	return strings.ToUpper(name[:1]) + name[1:]
}

// FormatLabel produces the overlay text for a detection, eg "Person 90%" or "Car 87.5%".
// The percentage is rounded to one decimal place, and whole numbers have no decimal point.
func FormatLabel(class int, confidence float32) string {
	pct := math.Round(float64(confidence)*1000) / 10
	return ClassLabel(class) + " " + strconv.FormatFloat(pct, 'f', -1, 64) + "%"
}
